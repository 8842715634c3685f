package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garywanggali/think-first/internal/artifact"
	"github.com/garywanggali/think-first/internal/common"
)

// EnqueueTurn records a turn for the worker. A repeated idempotency key
// returns the job created first with created=false.
func (s *Service) EnqueueTurn(ctx context.Context, userID uint64, conversationID, text, imageRef, idempotencyKey string) (*Job, bool, error) {
	if strings.TrimSpace(text) == "" && imageRef == "" {
		return nil, false, fmt.Errorf("%w: text or image required", ErrInvalidRequest)
	}
	if _, err := s.ownedConversation(ctx, userID, conversationID); err != nil {
		return nil, false, err
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}
	job := &Job{
		ID:             id,
		UserID:         userID,
		ConversationID: conversationID,
		Prompt:         text,
		ImageRef:       imageRef,
		Status:         JobQueued,
	}
	if k := strings.TrimSpace(idempotencyKey); k != "" {
		job.IdempotencyKey = &k
	}
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

// GetJob returns the job if it belongs to userID.
func (s *Service) GetJob(ctx context.Context, userID uint64, jobID string) (*Job, error) {
	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.UserID != userID {
		return nil, ErrNotFound
	}
	return j, nil
}

// RunJob executes a queued turn and records its result on the job.
func (s *Service) RunJob(ctx context.Context, jobID string) error {
	start := time.Now()
	_ = s.repo.UpdateJobStatusRunning(ctx, jobID)

	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status == JobSucceeded {
		// redelivery of a finished job
		return nil
	}

	in := TurnInput{Text: j.Prompt}
	if j.ImageRef != "" {
		in.Image = &artifact.Image{Ref: j.ImageRef, Path: s.resolve(j.ImageRef)}
	}

	var out *Outcome
	err = s.withConversation(ctx, j.UserID, j.ConversationID, func(c *Conversation) error {
		var err error
		out, err = s.runJobTurn(ctx, c, j, in)
		return err
	})
	if err != nil {
		if markErr := s.repo.MarkJobFailed(ctx, jobID, err.Error()); markErr != nil {
			return errors.Join(err, markErr)
		}
		s.log.Warn("turn job failed",
			zap.String("job_id", jobID),
			zap.Duration("cost", time.Since(start)),
			zap.Error(err))
		return err
	}

	if err := s.repo.MarkJobSucceeded(ctx, jobID, out.InteractionID); err != nil {
		return err
	}
	if cost := time.Since(start); cost > 2*time.Second {
		s.log.Info("slow turn job", zap.String("job_id", jobID), zap.Duration("cost", cost))
	}
	return nil
}

// runJobTurn processes the job's turn once. A previous attempt that logged
// the learner turn but no reply is truncated and redone; one that got as far
// as a reply is only recorded.
func (s *Service) runJobTurn(ctx context.Context, c *Conversation, j *Job, in TurnInput) (*Outcome, error) {
	last, err := s.repo.LastInteraction(ctx, c.ConversationID)
	if err != nil {
		return nil, err
	}

	if j.LogMark == nil {
		var mark uint64
		if last != nil {
			mark = last.ID
		}
		if err := s.repo.SetJobLogMark(ctx, j.ID, mark); err != nil {
			return nil, err
		}
		return s.process(ctx, c, in)
	}

	if last != nil && last.ID > *j.LogMark {
		if !last.Kind.UserAuthored() || last.Text != jobText(in) {
			s.log.Info("turn job already applied",
				zap.String("job_id", j.ID),
				zap.Uint64("interaction_id", last.ID))
			return &Outcome{Status: StatusSuccess, Reply: VisibleText(last.Text), Phase: c.Phase, InteractionID: last.ID}, nil
		}
		if _, err := s.repo.TruncateFrom(ctx, c.ConversationID, last.ID); err != nil {
			return nil, err
		}
		s.log.Info("resuming turn job",
			zap.String("job_id", j.ID),
			zap.Uint64("dropped_interaction_id", last.ID))
	}
	return s.process(ctx, c, in)
}

// jobText is the text process logs for in.
func jobText(in TurnInput) string {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Image != nil {
		return imageOnlyText
	}
	return text
}
