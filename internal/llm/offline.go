package llm

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"
)

// LatencyFunc returns how long the offline responder waits before replying
// (chunk false) or between streamed words (chunk true).
type LatencyFunc func(chunk bool) time.Duration

// NoLatency replies immediately. Tests use it.
func NoLatency(bool) time.Duration { return 0 }

// RandomLatency waits a uniform random duration in [min, max] before a
// reply, and a tenth of that between streamed words.
func RandomLatency(min, max time.Duration) LatencyFunc {
	return func(chunk bool) time.Duration {
		d := min
		if max > min {
			d += time.Duration(rand.Int64N(int64(max - min)))
		}
		if chunk {
			d /= 10
		}
		return d
	}
}

const offlineModel = "offline"

type offlineTopic struct {
	name     string
	keywords []string
	reply    string
}

// offlineTopics are matched in order against the words of the latest user
// turn. The first hit wins.
var offlineTopics = []offlineTopic{
	{
		name:     "math",
		keywords: []string{"math", "maths", "add", "addition", "subtract", "multiply", "multiplication", "divide", "division", "fraction", "fractions", "number", "numbers", "count", "plus", "minus"},
		reply:    "Math is like a puzzle, and you are the puzzle solver! Let's take it one small step at a time. Can you tell me the problem you are working on?",
	},
	{
		name:     "reading",
		keywords: []string{"read", "reading", "book", "books", "story", "stories", "word", "words", "spell", "spelling", "letter", "letters"},
		reply:    "I love stories! Reading helps your brain grow strong. What are you reading right now? We can look at the tricky words together.",
	},
	{
		name:     "science",
		keywords: []string{"science", "plant", "plants", "animal", "animals", "space", "planet", "planets", "water", "weather", "experiment", "body", "sun", "moon"},
		reply:    "Science is all about asking questions and finding out how things work! What would you like to explore? Maybe plants, animals, or space?",
	},
	{
		name:     "quiz",
		keywords: []string{"quiz", "flashcard", "flashcards", "test", "practice", "review"},
		reply:    "Great idea! Practice makes you stronger. Tell me the topic and I will ask you one question at a time. Ready?",
	},
	{
		name:     "help",
		keywords: []string{"help", "stuck", "confused", "understand", "explain", "how", "why"},
		reply:    "I am here to help! Tell me what you are working on, and we will figure it out together, one step at a time.",
	},
	{
		name:     "greeting",
		keywords: []string{"hi", "hello", "hey", "hiya", "salam", "marhaba"},
		reply:    "Hi there! I'm Buddy, your learning friend. What would you like to learn about today?",
	},
}

const offlineDefaultReply = "That's a great thought! I love learning with you. Can you tell me a little more, or ask me about math, reading, or science?"

// OfflineProvider answers without a network connection, with canned
// encouraging replies chosen by keywords in the latest user turn. It is
// used when no vendor credential is configured.
type OfflineProvider struct {
	latency LatencyFunc
}

// NewOfflineProvider creates an offline responder. A nil latency means
// NoLatency.
func NewOfflineProvider(latency LatencyFunc) *OfflineProvider {
	if latency == nil {
		latency = NoLatency
	}
	return &OfflineProvider{latency: latency}
}

func (p *OfflineProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := sleepCtx(ctx, p.latency(false)); err != nil {
		return nil, err
	}
	return offlineResponse(OfflineReply(req.ChildText())), nil
}

// GenerateStream emits the reply word by word.
func (p *OfflineProvider) GenerateStream(ctx context.Context, req Request, onChunk ChunkFunc) (*Response, error) {
	if err := sleepCtx(ctx, p.latency(false)); err != nil {
		return nil, err
	}
	reply := OfflineReply(req.ChildText())
	for _, word := range strings.SplitAfter(reply, " ") {
		if err := sleepCtx(ctx, p.latency(true)); err != nil {
			return nil, err
		}
		onChunk(word)
	}
	return offlineResponse(reply), nil
}

func (p *OfflineProvider) ModelID() string {
	return offlineModel
}

// OfflineReply picks the canned reply for message.
func OfflineReply(message string) string {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		words[w] = true
	}
	for _, t := range offlineTopics {
		for _, k := range t.keywords {
			if words[k] {
				return t.reply
			}
		}
	}
	return offlineDefaultReply
}

func offlineResponse(reply string) *Response {
	words := len(strings.Fields(reply))
	return &Response{
		Content:      reply,
		FinishReason: FinishEnd,
		Model:        offlineModel,
		Usage:        Usage{OutputTokens: words, TotalTokens: words},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
