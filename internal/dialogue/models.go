package dialogue

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
)

type Phase string

const (
	PhaseInitialProbe Phase = "initial_probe"
	PhaseVisualLoop   Phase = "visual_loop"
	PhaseReview       Phase = "review"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseInitialProbe, PhaseVisualLoop, PhaseReview:
		return true
	}
	return false
}

// Mode is chosen on the first turn and never changes afterwards.
type Mode string

const (
	ModeSocratic Mode = "socratic"
	ModeScripted Mode = "scripted"
)

type Kind string

const (
	KindQuestion       Kind = "question"
	KindProbeAnswer    Kind = "probe_answer"
	KindAIImage        Kind = "ai_image"
	KindInterpretation Kind = "user_interpretation"
	KindAIFeedback     Kind = "ai_feedback"
	KindReview         Kind = "review"
	KindSynthesis      Kind = "user_synthesis"
)

// UserAuthored reports whether the learner wrote this turn.
func (k Kind) UserAuthored() bool {
	switch k {
	case KindQuestion, KindProbeAnswer, KindInterpretation, KindSynthesis:
		return true
	}
	return false
}

var aiKinds = []Kind{KindAIFeedback, KindAIImage, KindReview}

type Conversation struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ConversationID string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"conversation_id"`
	UserID         uint64    `gorm:"index;not null" json:"-"`
	Topic          string    `gorm:"type:varchar(255);not null;default:''" json:"topic"`
	Phase          Phase     `gorm:"type:varchar(20);index;not null;default:initial_probe" json:"phase"`
	Mode           Mode      `gorm:"type:varchar(16);not null;default:socratic" json:"mode"`
	ContextSummary *string   `gorm:"type:text" json:"context_summary,omitempty"`
	Completed      bool      `gorm:"not null;default:false" json:"completed"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

// Interaction is one turn. ID is the insertion-order key of the log.
type Interaction struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"type:varchar(26);not null;index:idx_interaction_conv,priority:1" json:"conversation_id"`
	Kind           Kind      `gorm:"type:varchar(20);not null;index:idx_interaction_conv,priority:2" json:"kind"`
	Text           string    `gorm:"type:text" json:"text,omitempty"`
	ArtifactRef    string    `gorm:"type:varchar(1024)" json:"artifact_ref,omitempty"`
	ArtifactDesc   string    `gorm:"type:text" json:"artifact_desc,omitempty"`
	Passed         bool      `gorm:"not null;default:false" json:"passed"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Interaction) TableName() string { return "interactions" }

type PathStage struct {
	Stage       string `json:"stage"`
	Description string `json:"description"`
}

// FinalReview is the terminal synthesis as sent to the rendering layer.
type FinalReview struct {
	Summary      string      `json:"summary"`
	ThinkingPath []PathStage `json:"thinking_path"`
	Advice       string      `json:"advice"`
}

type Review struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement" json:"-"`
	ConversationID string         `gorm:"type:varchar(26);uniqueIndex;not null" json:"conversation_id"`
	Summary        string         `gorm:"type:text;not null" json:"summary"`
	ThinkingPath   datatypes.JSON `gorm:"not null" json:"thinking_path"`
	Advice         string         `gorm:"type:text;not null" json:"advice"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (Review) TableName() string { return "reviews" }

func newReview(conversationID string, fr FinalReview) (*Review, error) {
	path := fr.ThinkingPath
	if path == nil {
		path = []PathStage{}
	}
	b, err := json.Marshal(path)
	if err != nil {
		return nil, err
	}
	return &Review{
		ConversationID: conversationID,
		Summary:        fr.Summary,
		ThinkingPath:   datatypes.JSON(b),
		Advice:         fr.Advice,
	}, nil
}

func (r *Review) Final() (FinalReview, error) {
	var path []PathStage
	if len(r.ThinkingPath) > 0 {
		if err := json.Unmarshal(r.ThinkingPath, &path); err != nil {
			return FinalReview{}, err
		}
	}
	return FinalReview{Summary: r.Summary, ThinkingPath: path, Advice: r.Advice}, nil
}
