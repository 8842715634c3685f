package dialogue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garywanggali/think-first/internal/artifact"
	"github.com/garywanggali/think-first/internal/common"
	"github.com/garywanggali/think-first/internal/reasoning"
)

// MediaResolver maps a stored artifact reference back to a local file path.
// It returns "" when the reference is not local.
type MediaResolver interface {
	Resolve(ref string) string
}

type Options struct {
	Policy        PassPolicy
	Locker        Locker
	Resolver      MediaResolver
	Log           *zap.Logger
	WindowSize    int
	TopicMaxRunes int
}

// Service is the dialogue engine: it owns the turn processor, the
// retry/rollback controller and conversation lifecycle.
type Service struct {
	repo      *Repo
	reasoner  reasoning.Gateway
	artifacts artifact.Gateway

	policy        PassPolicy
	locker        Locker
	resolver      MediaResolver
	log           *zap.Logger
	windowSize    int
	topicMaxRunes int
}

func NewService(repo *Repo, reasoner reasoning.Gateway, artifacts artifact.Gateway, opts Options) *Service {
	s := &Service{
		repo:          repo,
		reasoner:      reasoner,
		artifacts:     artifacts,
		policy:        opts.Policy,
		locker:        opts.Locker,
		resolver:      opts.Resolver,
		log:           opts.Log,
		windowSize:    opts.WindowSize,
		topicMaxRunes: opts.TopicMaxRunes,
	}
	if s.policy == nil {
		s.policy = NextImagePolicy{}
	}
	if s.locker == nil {
		s.locker = NewMemoryLocker()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.windowSize <= 0 || s.windowSize > 50 {
		s.windowSize = 5
	}
	if s.topicMaxRunes <= 0 {
		s.topicMaxRunes = 30
	}
	return s
}

func (s *Service) Policy() PassPolicy { return s.policy }

// withConversation locks the conversation and loads it, checking ownership.
func (s *Service) withConversation(ctx context.Context, userID uint64, conversationID string, fn func(c *Conversation) error) error {
	unlock, err := s.locker.Lock(ctx, lockKey(conversationID))
	if err != nil {
		return fmt.Errorf("lock conversation: %w", err)
	}
	defer unlock()

	c, err := s.ownedConversation(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	return fn(c)
}

func (s *Service) ownedConversation(ctx context.Context, userID uint64, conversationID string) (*Conversation, error) {
	c, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		// hide existence
		return nil, ErrNotFound
	}
	return c, nil
}

// StartConversation returns the user's pending empty conversation, creating
// one if there is none.
func (s *Service) StartConversation(ctx context.Context, userID uint64) (*Conversation, bool, error) {
	c, err := s.repo.FindPendingConversation(ctx, userID)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}
	c = &Conversation{
		ConversationID: id,
		UserID:         userID,
		Phase:          PhaseInitialProbe,
		Mode:           ModeSocratic,
	}
	if err := s.repo.CreateConversation(ctx, c); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (s *Service) ListConversations(ctx context.Context, userID uint64, limit int) ([]Conversation, error) {
	return s.repo.ListConversations(ctx, userID, limit)
}

type InteractionView struct {
	ID           uint64            `json:"id"`
	Kind         Kind              `json:"kind"`
	Text         string            `json:"text,omitempty"`
	ArtifactRef  string            `json:"artifact_ref,omitempty"`
	ArtifactDesc string            `json:"artifact_desc,omitempty"`
	Passed       bool              `json:"passed"`
	Challenge    *ChallengePayload `json:"challenge,omitempty"`
	Review       *FinalReview      `json:"review,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

type ConversationView struct {
	Conversation *Conversation     `json:"conversation"`
	Interactions []InteractionView `json:"interactions"`
	Review       *FinalReview      `json:"review,omitempty"`
}

// GetConversation returns the conversation with its ordered log. Tagged
// blocks are decoded so a reload can rebuild interactive widgets.
func (s *Service) GetConversation(ctx context.Context, userID uint64, conversationID string) (*ConversationView, error) {
	c, err := s.ownedConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	log, err := s.repo.ListInteractions(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	view := &ConversationView{Conversation: c, Interactions: make([]InteractionView, 0, len(log))}
	for _, in := range log {
		text, ch := DecodeChallenge(in.Text)
		text, fr := DecodeFinalReview(text)
		view.Interactions = append(view.Interactions, InteractionView{
			ID:           in.ID,
			Kind:         in.Kind,
			Text:         text,
			ArtifactRef:  in.ArtifactRef,
			ArtifactDesc: in.ArtifactDesc,
			Passed:       in.Passed,
			Challenge:    ch,
			Review:       fr,
			CreatedAt:    in.CreatedAt,
		})
	}

	rv, err := s.repo.GetReview(ctx, conversationID)
	switch {
	case err == nil:
		fr, err := rv.Final()
		if err != nil {
			return nil, err
		}
		view.Review = &fr
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return view, nil
}

// DeleteConversation removes the conversation with its log, review and jobs.
func (s *Service) DeleteConversation(ctx context.Context, userID uint64, conversationID string) error {
	return s.withConversation(ctx, userID, conversationID, func(c *Conversation) error {
		return s.repo.DeleteConversation(ctx, c.ConversationID)
	})
}
