package dialogue

import (
	"context"

	"go.uber.org/zap"

	"github.com/garywanggali/think-first/internal/artifact"
)

// Retry regenerates the reply for a dangling user turn: the turn is removed
// and processed again. When the log ends with a system turn nothing changes
// and the outcome status is StatusNoRetry.
func (s *Service) Retry(ctx context.Context, userID uint64, conversationID string) (*Outcome, error) {
	var out *Outcome
	err := s.withConversation(ctx, userID, conversationID, func(c *Conversation) error {
		last, err := s.repo.LastInteraction(ctx, c.ConversationID)
		if err != nil {
			return err
		}
		if last == nil || !last.Kind.UserAuthored() {
			out = &Outcome{Status: StatusNoRetry, Phase: c.Phase}
			return nil
		}

		if _, err := s.repo.TruncateFrom(ctx, c.ConversationID, last.ID); err != nil {
			return err
		}
		s.log.Info("retrying turn",
			zap.String("conversation_id", c.ConversationID),
			zap.Uint64("interaction_id", last.ID),
			zap.String("kind", string(last.Kind)))

		// the opening question is always answered by the opening probe
		if last.Kind == KindQuestion && !c.Completed {
			c.Phase = PhaseInitialProbe
		}

		in := TurnInput{Text: last.Text}
		if last.ArtifactRef != "" {
			in.Image = &artifact.Image{Ref: last.ArtifactRef, Path: s.resolve(last.ArtifactRef)}
		}
		out, err = s.process(ctx, c, in)
		return err
	})
	return out, err
}

// Rollback deletes every turn after interactionID. Leaving the terminal
// state also deletes the conversation's Review, so a review phase never
// outlives the log it summarized.
func (s *Service) Rollback(ctx context.Context, userID uint64, conversationID string, interactionID uint64) (*Conversation, error) {
	var out *Conversation
	err := s.withConversation(ctx, userID, conversationID, func(c *Conversation) error {
		target, err := s.repo.GetInteraction(ctx, c.ConversationID, interactionID)
		if err != nil {
			return err
		}

		var removed int64
		err = s.repo.WithTx(ctx, func(tx *Repo) error {
			var n int64
			var err error
			if target.Kind == KindReview {
				// the review entry cannot outlive its Review row
				n, err = tx.TruncateFrom(ctx, c.ConversationID, target.ID)
			} else {
				n, err = tx.DeleteAfter(ctx, c.ConversationID, target.ID)
			}
			if err != nil {
				return err
			}
			removed = n
			if c.Phase != PhaseReview && !c.Completed {
				return nil
			}
			if err := tx.DeleteReview(ctx, c.ConversationID); err != nil {
				return err
			}
			c.Phase = PhaseVisualLoop
			c.Completed = false
			return tx.SaveConversation(ctx, c)
		})
		if err != nil {
			return err
		}

		s.log.Info("conversation rolled back",
			zap.String("conversation_id", c.ConversationID),
			zap.Uint64("target", interactionID),
			zap.Int64("removed", removed),
			zap.String("phase", string(c.Phase)))
		out = c
		return nil
	})
	return out, err
}

func (s *Service) resolve(ref string) string {
	if s.resolver == nil {
		return ""
	}
	return s.resolver.Resolve(ref)
}
