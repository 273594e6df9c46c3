package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turnN(i int) Turn {
	role := RoleUser
	if i%2 == 1 {
		role = RoleAssistant
	}
	return NewTurn(role, fmt.Sprintf("turn %d", i), time.Unix(int64(i), 0).UTC(), nil)
}

func TestHistoryFIFOEviction(t *testing.T) {
	h := NewHistory(5)
	for i := 0; i < 5; i++ {
		h.Append(turnN(i))
	}
	require.Equal(t, 5, h.Len())

	h.Append(turnN(5))
	require.Equal(t, 5, h.Len())

	turns := h.Turns()
	for i, tr := range turns {
		assert.Equal(t, fmt.Sprintf("turn %d", i+1), tr.Content)
	}
}

func TestHistoryAppendPairKeepsLatest(t *testing.T) {
	h := NewHistory(1)
	h.Append(turnN(0), turnN(1))
	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "turn 1", last.Content)
	assert.Equal(t, 1, h.Len())
}

func TestHistoryDefaultMax(t *testing.T) {
	assert.Equal(t, DefaultMaxTurns, NewHistory(0).Max())
	assert.Equal(t, DefaultMaxTurns, NewHistory(-3).Max())
}

func TestHistoryTurnsIsACopy(t *testing.T) {
	h := NewHistory(3)
	h.Append(NewTurn(RoleUser, "hello", time.Now(), &TurnMetadata{SafetyFlags: []string{"a"}}))

	got := h.Turns()
	got[0].Content = "mutated"
	got[0].Metadata.SafetyFlags[0] = "b"

	again := h.Turns()
	assert.Equal(t, "hello", again[0].Content)
	assert.Equal(t, []string{"a"}, again[0].Flags())
}

func TestHistoryReplaceAppliesCap(t *testing.T) {
	h := NewHistory(2)
	h.Replace([]Turn{turnN(0), turnN(1), turnN(2)})
	turns := h.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "turn 1", turns[0].Content)
	assert.Equal(t, "turn 2", turns[1].Content)

	h.Clear()
	assert.Zero(t, h.Len())
	_, ok := h.Last()
	assert.False(t, ok)
}

func TestTurnFlagged(t *testing.T) {
	assert.False(t, NewTurn(RoleUser, "x", time.Now(), nil).Flagged())
	assert.False(t, NewTurn(RoleUser, "x", time.Now(), &TurnMetadata{LessonID: "l1"}).Flagged())
	assert.True(t, NewTurn(RoleUser, "x", time.Now(), &TurnMetadata{SafetyFlags: []string{"pii_detected"}}).Flagged())
}

func TestHistoryKey(t *testing.T) {
	assert.Equal(t, "chat:history:kid-7", HistoryKey("kid-7"))
}
