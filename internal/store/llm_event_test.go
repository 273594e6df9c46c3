package store

import (
	"context"
	"testing"
)

func TestEventRepoAppendAndQuery(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepo(NewMemory(), 3)

	for i, purpose := range []string{"chat", "chat", "summary", "chat"} {
		err := repo.AppendLLMRequest(ctx, LLMRequestEventData{
			Model:        "m",
			Purpose:      purpose,
			InputTokens:  10 * (i + 1),
			OutputTokens: 1,
			LatencyMs:    100,
			Success:      true,
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	events, err := repo.QueryLLMEvents(ctx, QueryOpts{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len = %d, want 3 (capped)", len(events))
	}
	// Newest first; IDs keep counting after eviction.
	if events[0].ID != 4 || events[2].ID != 2 {
		t.Errorf("ids = %d..%d, want 4..2", events[0].ID, events[2].ID)
	}

	chat, _ := repo.QueryLLMEvents(ctx, QueryOpts{Purpose: "chat", Limit: 1})
	if len(chat) != 1 || chat[0].ID != 4 {
		t.Errorf("purpose filter = %+v", chat)
	}

	if e, _ := repo.GetLLMEvent(ctx, 1); e != nil {
		t.Errorf("evicted event 1 still returned")
	}
	if e, _ := repo.GetLLMEvent(ctx, 3); e == nil || e.Purpose != "summary" {
		t.Errorf("GetLLMEvent(3) = %+v", e)
	}
}

func TestEventRepoUsage(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepo(NewMemory(), 0)

	add := func(model, purpose string, in, out int, ms int64) {
		t.Helper()
		if err := repo.AppendLLMRequest(ctx, LLMRequestEventData{
			Model: model, Purpose: purpose, InputTokens: in, OutputTokens: out, LatencyMs: ms, Success: true,
		}); err != nil {
			t.Fatal(err)
		}
	}
	add("gemini-2.5-flash", "chat", 100, 20, 200)
	add("gemini-2.5-flash", "chat", 50, 10, 400)
	add("claude-haiku-4-5", "summary", 30, 5, 100)

	byPurpose, err := repo.LLMUsageByPurpose(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(byPurpose) != 2 {
		t.Fatalf("purposes = %d, want 2", len(byPurpose))
	}
	if byPurpose[0].Purpose != "chat" || byPurpose[0].Calls != 2 || byPurpose[0].InputTokens != 150 || byPurpose[0].AvgLatencyMs != 300 {
		t.Errorf("chat usage = %+v", byPurpose[0])
	}

	byModel, err := repo.LLMUsageByModel(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(byModel) != 2 || byModel[0].Model != "claude-haiku-4-5" || byModel[1].OutputTokens != 30 {
		t.Errorf("model usage = %+v", byModel)
	}
}
