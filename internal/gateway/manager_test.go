package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/abhisek/studybuddy/internal/llm"
	"github.com/abhisek/studybuddy/internal/observability"
	"github.com/abhisek/studybuddy/internal/store"
)

func newManager(t *testing.T, mock *llm.MockProvider, limit RateLimit) (*Manager, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	m := NewManager(Deps{
		Provider: mock,
		Store:    store.NewMemory(),
		Metrics:  metrics,
		Logger:   zaptest.NewLogger(t),
	}, DefaultConfig(), limit)
	return m, metrics
}

func TestManager_OpenReturnsSameConversation(t *testing.T) {
	m, metrics := newManager(t, llm.NewMockProvider(), RateLimit{})
	ctx := context.Background()

	a, err := m.Open(ctx, testProfile())
	require.NoError(t, err)
	b, err := m.Open(ctx, testProfile())
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveConversations))

	got, ok := m.Get(childID)
	require.True(t, ok)
	assert.Same(t, a, got)

	m.Close(childID)
	_, ok = m.Get(childID)
	assert.False(t, ok)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActiveConversations))
}

func TestManager_SendUnknownChild(t *testing.T) {
	m, _ := newManager(t, llm.NewMockProvider(), RateLimit{})
	_, err := m.Send(context.Background(), "nobody", "hello", SendOptions{})
	assert.ErrorIs(t, err, ErrUnknownConversation)
}

func TestManager_RateLimit(t *testing.T) {
	mock := llm.NewMockProvider(
		llm.MockResponse{Content: "Let's learn!"},
		llm.MockResponse{Content: "Let's learn more!"},
	)
	m, metrics := newManager(t, mock, RateLimit{PerSecond: 0.001, Burst: 1})
	ctx := context.Background()
	_, err := m.Open(ctx, testProfile())
	require.NoError(t, err)

	first, err := m.Send(ctx, childID, "hello", SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, first.Outcome)

	second, err := m.Send(ctx, childID, "hello again", SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRateLimited, second.Outcome)
	assert.Equal(t, en.rateLimited, second.Message.Content)

	assert.Equal(t, 1, mock.CallCount())
	gw, _ := m.Get(childID)
	assert.Len(t, gw.History(), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SendOutcomes.WithLabelValues("rate_limited")))
}

func TestManager_SerializesSendsPerChild(t *testing.T) {
	mock := llm.NewMockProvider(
		llm.MockResponse{Content: "Let's learn one.", Delay: 30 * time.Millisecond},
		llm.MockResponse{Content: "Let's learn two.", Delay: 30 * time.Millisecond},
		llm.MockResponse{Content: "Let's learn three.", Delay: 30 * time.Millisecond},
	)
	m, _ := newManager(t, mock, RateLimit{})
	ctx := context.Background()
	_, err := m.Open(ctx, testProfile())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for _, text := range []string{"one", "two", "three"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Send(ctx, childID, text, SendOptions{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	gw, _ := m.Get(childID)
	assert.Len(t, gw.History(), 6)
}
