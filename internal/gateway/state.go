package gateway

import (
	"strings"
	"sync"
)

// State is a step of the send pipeline.
type State int32

const (
	StateIdle State = iota
	StateInputChecking
	StateBlocked
	StatePromptBuilding
	StateModelCalling
	StateUpstreamBlocked
	StateOutputChecking
	StateSanitizing
	StateHistoryAppend
	StatePersisted
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateInputChecking:   "input_checking",
	StateBlocked:         "blocked",
	StatePromptBuilding:  "prompt_building",
	StateModelCalling:    "model_calling",
	StateUpstreamBlocked: "upstream_blocked",
	StateOutputChecking:  "output_checking",
	StateSanitizing:      "sanitizing",
	StateHistoryAppend:   "history_append",
	StatePersisted:       "persisted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// streamTracker forwards chunks to the caller until the call is abandoned
// and remembers what was shown. Text is released a sentence at a time and
// only after screen has rewritten it, so a match that spans chunks is
// redacted before any of it is shown. A nil tracker means no streaming.
type streamTracker struct {
	onChunk func(string)
	screen  func(string) string

	mu        sync.Mutex
	abandoned bool
	diverged  bool
	raw       strings.Builder
	shown     strings.Builder
}

func (s *streamTracker) emit(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned {
		return
	}
	s.raw.WriteString(chunk)
	raw := s.raw.String()
	if n := settled(raw); n > 0 {
		s.show(s.screen(raw[:n]))
	}
}

// flush releases whatever of final has not been shown yet. It is called
// once the whole reply has passed the output check.
func (s *streamTracker) flush(final string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.abandoned {
		s.show(final)
	}
}

// show sends the part of safe beyond what was already shown. Once the
// screened text stops extending the shown prefix the stream goes quiet and
// the final message takes over. Callers hold mu.
func (s *streamTracker) show(safe string) {
	if s.diverged {
		return
	}
	shown := s.shown.String()
	if !strings.HasPrefix(safe, shown) {
		s.diverged = true
		return
	}
	if rest := safe[len(shown):]; rest != "" {
		s.shown.WriteString(rest)
		s.onChunk(rest)
	}
}

// settled returns the length of the prefix of text that ends at the last
// sentence boundary: terminal punctuation followed by whitespace, or a
// newline.
func settled(text string) int {
	for i := len(text) - 1; i > 0; i-- {
		switch {
		case text[i] == '\n':
			return i + 1
		case text[i] == ' ' || text[i] == '\t':
			if strings.IndexByte(".!?", text[i-1]) >= 0 {
				return i + 1
			}
		}
	}
	return 0
}

func (s *streamTracker) abandon() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.abandoned = true
	s.mu.Unlock()
}

// replaced reports whether the caller saw chunks that differ from final.
func (s *streamTracker) replaced(final string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown.Len() > 0 && s.shown.String() != final
}
