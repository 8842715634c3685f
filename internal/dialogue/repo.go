package dialogue

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repo is the persistence layer: conversations, the interaction log,
// reviews and turn jobs.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// WithTx runs fn inside one transaction.
func (r *Repo) WithTx(ctx context.Context, fn func(tx *Repo) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{db: tx})
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Conversations

func (r *Repo) CreateConversation(ctx context.Context, c *Conversation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// FindPendingConversation returns the user's oldest conversation that has not
// seen a turn yet.
func (r *Repo) FindPendingConversation(ctx context.Context, userID uint64) (*Conversation, error) {
	var c Conversation
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND phase = ?", userID, PhaseInitialProbe).
		Where("NOT EXISTS (?)", r.db.Model(&Interaction{}).
			Select("1").
			Where("interactions.conversation_id = conversations.conversation_id")).
		Order("id ASC").
		First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ListConversations returns the user's conversations, most recently updated first.
func (r *Repo) ListConversations(ctx context.Context, userID uint64, limit int) ([]Conversation, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []Conversation
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SaveConversation persists the mutable conversation state.
func (r *Repo) SaveConversation(ctx context.Context, c *Conversation) error {
	return r.db.WithContext(ctx).Model(c).
		Select("topic", "phase", "mode", "context_summary", "completed", "updated_at").
		Updates(c).Error
}

// DeleteConversation removes the conversation and everything it owns.
func (r *Repo) DeleteConversation(ctx context.Context, conversationID string) error {
	return r.WithTx(ctx, func(tx *Repo) error {
		db := tx.db.WithContext(ctx)
		if err := db.Where("conversation_id = ?", conversationID).Delete(&Interaction{}).Error; err != nil {
			return err
		}
		if err := db.Where("conversation_id = ?", conversationID).Delete(&Review{}).Error; err != nil {
			return err
		}
		if err := db.Where("conversation_id = ?", conversationID).Delete(&Job{}).Error; err != nil {
			return err
		}
		return db.Where("conversation_id = ?", conversationID).Delete(&Conversation{}).Error
	})
}

// Interaction log

func (r *Repo) AppendInteraction(ctx context.Context, in *Interaction) error {
	return r.db.WithContext(ctx).Create(in).Error
}

// ListInteractions returns the full log in insertion order.
func (r *Repo) ListInteractions(ctx context.Context, conversationID string) ([]Interaction, error) {
	var out []Interaction
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// LastInteraction returns nil without error for an empty log.
func (r *Repo) LastInteraction(ctx context.Context, conversationID string) (*Interaction, error) {
	var in Interaction
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(1).
		Find(&in).Error
	if err != nil {
		return nil, err
	}
	if in.ID == 0 {
		return nil, nil
	}
	return &in, nil
}

// RecentInteractions returns the last n entries, oldest first.
func (r *Repo) RecentInteractions(ctx context.Context, conversationID string, n int) ([]Interaction, error) {
	if n <= 0 {
		n = 5
	}
	var desc []Interaction
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(n).
		Find(&desc).Error; err != nil {
		return nil, err
	}
	// reverse to ASC (oldest -> newest)
	for i, j := 0, len(desc)-1; i < j; i, j = i+1, j-1 {
		desc[i], desc[j] = desc[j], desc[i]
	}
	return desc, nil
}

func (r *Repo) GetInteraction(ctx context.Context, conversationID string, id uint64) (*Interaction, error) {
	var in Interaction
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND id = ?", conversationID, id).
		First(&in).Error; err != nil {
		return nil, notFound(err)
	}
	return &in, nil
}

func (r *Repo) CountByKind(ctx context.Context, conversationID string, kinds ...Kind) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Interaction{}).
		Where("conversation_id = ? AND kind IN ?", conversationID, kinds).
		Count(&n).Error
	return n, err
}

func (r *Repo) CountPassed(ctx context.Context, conversationID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Interaction{}).
		Where("conversation_id = ? AND passed = ?", conversationID, true).
		Count(&n).Error
	return n, err
}

// MarkPassed sets the validation marker, the only flag an entry may change.
func (r *Repo) MarkPassed(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&Interaction{}).
		Where("id = ?", id).
		Update("passed", true).Error
}

// UpdateText patches text content; used to attach a deferred challenge payload.
func (r *Repo) UpdateText(ctx context.Context, id uint64, text string) error {
	return r.db.WithContext(ctx).Model(&Interaction{}).
		Where("id = ?", id).
		Update("text", text).Error
}

// DeleteAfter removes every entry with insertion order strictly greater than id.
func (r *Repo) DeleteAfter(ctx context.Context, conversationID string, id uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("conversation_id = ? AND id > ?", conversationID, id).
		Delete(&Interaction{})
	return res.RowsAffected, res.Error
}

// TruncateFrom removes the entry id and everything after it.
func (r *Repo) TruncateFrom(ctx context.Context, conversationID string, id uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("conversation_id = ? AND id >= ?", conversationID, id).
		Delete(&Interaction{})
	return res.RowsAffected, res.Error
}

// Reviews

func (r *Repo) CreateReview(ctx context.Context, rv *Review) error {
	return r.db.WithContext(ctx).Create(rv).Error
}

func (r *Repo) GetReview(ctx context.Context, conversationID string) (*Review, error) {
	var rv Review
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		First(&rv).Error; err != nil {
		return nil, notFound(err)
	}
	return &rv, nil
}

func (r *Repo) DeleteReview(ctx context.Context, conversationID string) error {
	return r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Delete(&Review{}).Error
}

// Job CRUD
func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) SetJobLogMark(ctx context.Context, id string, mark uint64) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND log_mark IS NULL", id).
		Update("log_mark", mark).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, interactionID uint64) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":                JobSucceeded,
			"result_interaction_id": interactionID,
			"error":                 nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":                JobFailed,
			"error":                 errMsg,
			"result_interaction_id": nil,
		}).Error
}

func (r *Repo) GetJobByUserAndIdempotencyKey(ctx context.Context, userID uint64, key string) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&job).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

// CreateJobOrGetExisting tries to create a job, but if (user_id, idempotency_key)
// already exists it returns the existing job instead.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetJobByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, ErrNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}
