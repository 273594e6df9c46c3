package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

const (
	llmEventsKey = "llm:events"

	// DefaultMaxLLMEvents bounds the event log; the oldest events are dropped.
	DefaultMaxLLMEvents = 500
)

// llmEventLog is the persisted envelope. NextID keeps IDs monotonic after
// old events are evicted.
type llmEventLog struct {
	NextID int               `json:"nextId"`
	Events []LLMRequestEvent `json:"events"`
}

var llmEventLogSchema = &Schema{
	Name: "llm-event-log",
	Definition: map[string]any{
		"type":     "object",
		"required": []any{"nextId", "events"},
		"properties": map[string]any{
			"nextId": map[string]any{"type": "integer", "minimum": 1},
			"events": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"id", "timestamp", "model", "purpose", "success"},
				},
			},
		},
	},
}

// eventRepo implements EventRepo as a capped list in a KV store.
type eventRepo struct {
	mu  sync.Mutex
	kv  KV
	max int
	now func() time.Time
}

// NewEventRepo returns an EventRepo that keeps the last max events.
// A non-positive max uses DefaultMaxLLMEvents.
func NewEventRepo(kv KV, max int) EventRepo {
	if max <= 0 {
		max = DefaultMaxLLMEvents
	}
	return &eventRepo{kv: kv, max: max, now: time.Now}
}

func (r *eventRepo) load(ctx context.Context) (llmEventLog, error) {
	var log llmEventLog
	err := LoadJSON(ctx, r.kv, llmEventsKey, llmEventLogSchema, &log)
	if IsNotFound(err) {
		return llmEventLog{NextID: 1}, nil
	}
	if err != nil {
		return llmEventLog{}, err
	}
	return log, nil
}

func (r *eventRepo) AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	log, err := r.load(ctx)
	if err != nil {
		return fmt.Errorf("load LLM events: %w", err)
	}

	log.Events = append(log.Events, LLMRequestEvent{
		ID:           log.NextID,
		Timestamp:    r.now().UTC(),
		Provider:     data.Provider,
		Model:        data.Model,
		Purpose:      data.Purpose,
		InputTokens:  data.InputTokens,
		OutputTokens: data.OutputTokens,
		LatencyMs:    data.LatencyMs,
		Success:      data.Success,
		ErrorMessage: data.ErrorMessage,
		RequestBody:  data.RequestBody,
		ResponseBody: data.ResponseBody,
	})
	log.NextID++
	if over := len(log.Events) - r.max; over > 0 {
		log.Events = log.Events[over:]
	}

	if err := SaveJSON(ctx, r.kv, llmEventsKey, log); err != nil {
		return fmt.Errorf("save LLM request event: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMRequestEvent, error) {
	log, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	var out []LLMRequestEvent
	for i := len(log.Events) - 1; i >= 0; i-- {
		e := log.Events[i]
		if opts.Purpose != "" && e.Purpose != opts.Purpose {
			continue
		}
		if !opts.From.IsZero() && e.Timestamp.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && e.Timestamp.After(opts.To) {
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (r *eventRepo) GetLLMEvent(ctx context.Context, id int) (*LLMRequestEvent, error) {
	log, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range log.Events {
		if log.Events[i].ID == id {
			e := log.Events[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (r *eventRepo) LLMUsageByPurpose(ctx context.Context) ([]PurposeUsage, error) {
	log, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	byPurpose := map[string]*PurposeUsage{}
	latency := map[string]int64{}
	for _, e := range log.Events {
		u, ok := byPurpose[e.Purpose]
		if !ok {
			u = &PurposeUsage{Purpose: e.Purpose}
			byPurpose[e.Purpose] = u
		}
		u.Calls++
		u.InputTokens += e.InputTokens
		u.OutputTokens += e.OutputTokens
		latency[e.Purpose] += e.LatencyMs
	}

	out := make([]PurposeUsage, 0, len(byPurpose))
	for p, u := range byPurpose {
		u.AvgLatencyMs = latency[p] / int64(u.Calls)
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b PurposeUsage) int { return cmp.Compare(a.Purpose, b.Purpose) })
	return out, nil
}

func (r *eventRepo) LLMUsageByModel(ctx context.Context) ([]ModelUsage, error) {
	log, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	byModel := map[string]*ModelUsage{}
	for _, e := range log.Events {
		u, ok := byModel[e.Model]
		if !ok {
			u = &ModelUsage{Model: e.Model}
			byModel[e.Model] = u
		}
		u.Calls++
		u.InputTokens += e.InputTokens
		u.OutputTokens += e.OutputTokens
	}

	out := make([]ModelUsage, 0, len(byModel))
	for _, u := range byModel {
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b ModelUsage) int { return cmp.Compare(a.Model, b.Model) })
	return out, nil
}
