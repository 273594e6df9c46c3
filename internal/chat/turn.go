package chat

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TurnMetadata is optional context attached to a turn.
type TurnMetadata struct {
	LessonID    string   `json:"lessonId,omitempty"`
	ContentType string   `json:"contentType,omitempty"`
	SafetyFlags []string `json:"safetyFlags,omitempty"`
	// Withheld turns are kept for the record but never sent to the model.
	Withheld bool `json:"withheld,omitempty"`
}

// Turn is one message in a conversation. Turns are immutable once appended
// to a History.
type Turn struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	Metadata  *TurnMetadata `json:"metadata,omitempty"`
}

// NewTurn creates a turn with a fresh ID.
func NewTurn(role Role, content string, at time.Time, meta *TurnMetadata) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: at,
		Metadata:  meta,
	}
}

// Flags returns the safety flags on the turn, or nil.
func (t Turn) Flags() []string {
	if t.Metadata == nil {
		return nil
	}
	return t.Metadata.SafetyFlags
}

// Withheld reports whether the turn must stay out of model context.
func (t Turn) Withheld() bool {
	return t.Metadata != nil && t.Metadata.Withheld
}

// Flagged reports whether the turn carries any safety flag.
func (t Turn) Flagged() bool {
	return len(t.Flags()) > 0
}

func (t Turn) clone() Turn {
	if t.Metadata != nil {
		m := *t.Metadata
		m.SafetyFlags = slices.Clone(t.Metadata.SafetyFlags)
		t.Metadata = &m
	}
	return t
}
