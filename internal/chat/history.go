package chat

import "github.com/abhisek/studybuddy/internal/store"

// DefaultMaxTurns is the history cap used when none is configured.
const DefaultMaxTurns = 20

// HistoryKeyPrefix namespaces per-child history records in the KV store.
const HistoryKeyPrefix = "chat:history:"

// HistoryKey returns the storage key for a child's conversation history.
func HistoryKey(childID string) string {
	return HistoryKeyPrefix + childID
}

// History is an ordered, length-capped list of turns. When a new turn would
// exceed the cap, the oldest turns are evicted first. History is not safe
// for concurrent use; the gateway serializes access.
type History struct {
	max   int
	turns []Turn
}

// NewHistory creates an empty history holding at most max turns.
// A non-positive max falls back to DefaultMaxTurns.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxTurns
	}
	return &History{max: max}
}

// Max returns the configured cap.
func (h *History) Max() int { return h.max }

// Len returns the number of turns held.
func (h *History) Len() int { return len(h.turns) }

// Append adds turns in order, then evicts from the front until the history
// fits. The last appended turn is never evicted.
func (h *History) Append(turns ...Turn) {
	for _, t := range turns {
		h.turns = append(h.turns, t.clone())
	}
	h.trim()
}

// Replace swaps the contents for the given turns, applying the cap.
// Used when loading persisted history.
func (h *History) Replace(turns []Turn) {
	h.turns = h.turns[:0]
	h.Append(turns...)
}

// Clear removes every turn.
func (h *History) Clear() {
	h.turns = nil
}

// Turns returns a copy of the turns, oldest first.
func (h *History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	for i, t := range h.turns {
		out[i] = t.clone()
	}
	return out
}

// Last returns the most recent turn.
func (h *History) Last() (Turn, bool) {
	if len(h.turns) == 0 {
		return Turn{}, false
	}
	return h.turns[len(h.turns)-1].clone(), true
}

func (h *History) trim() {
	if over := len(h.turns) - h.max; over > 0 {
		h.turns = append([]Turn(nil), h.turns[over:]...)
	}
}

// HistorySchema validates a persisted turn list before it is trusted.
var HistorySchema = &store.Schema{
	Name: "chat-history",
	Definition: map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":     "object",
			"required": []any{"role", "content", "timestamp"},
			"properties": map[string]any{
				"id":        map[string]any{"type": "string"},
				"role":      map[string]any{"type": "string", "enum": []any{"user", "assistant"}},
				"content":   map[string]any{"type": "string"},
				"timestamp": map[string]any{"type": "string"},
				"metadata": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"lessonId":    map[string]any{"type": "string"},
						"contentType": map[string]any{"type": "string"},
						"safetyFlags": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
						"withheld": map[string]any{"type": "boolean"},
					},
				},
			},
		},
	},
}
