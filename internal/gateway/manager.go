package gateway

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/abhisek/studybuddy/internal/learner"
)

// ErrUnknownConversation is returned by Manager.Send for a child with no
// open conversation.
var ErrUnknownConversation = errors.New("gateway: no open conversation for child")

// RateLimit bounds how fast one child can send. A zero PerSecond disables
// limiting.
type RateLimit struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

type conversation struct {
	gw      *Gateway
	limiter *rate.Limiter
	// sendMu queues sends for one child so callers of Manager.Send never
	// see ErrConversationBusy.
	sendMu sync.Mutex
}

// Manager owns one Gateway per child and serializes sends per child.
// Different children proceed in parallel.
type Manager struct {
	deps  Deps
	cfg   Config
	limit RateLimit

	mu    sync.Mutex
	convs map[string]*conversation
}

// NewManager creates a Manager sharing deps across conversations.
func NewManager(deps Deps, cfg Config, limit RateLimit) *Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Manager{
		deps:  deps,
		cfg:   cfg,
		limit: limit,
		convs: make(map[string]*conversation),
	}
}

// Open returns the conversation for profile.ID, creating it if needed. An
// already open conversation keeps its original profile.
func (m *Manager) Open(ctx context.Context, profile learner.UserProfile) (*Gateway, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.convs[profile.ID]; ok {
		return c.gw, nil
	}
	gw, err := New(ctx, m.deps, profile, m.cfg)
	if err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if m.limit.PerSecond > 0 {
		burst := m.limit.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(m.limit.PerSecond), burst)
	}
	m.convs[profile.ID] = &conversation{gw: gw, limiter: limiter}
	m.deps.Metrics.ConversationOpened()
	m.deps.Logger.Debug("conversation opened", zap.String("child_id", profile.ID))
	return gw, nil
}

// Get returns the open conversation for childID.
func (m *Manager) Get(childID string) (*Gateway, bool) {
	c, ok := m.get(childID)
	if !ok {
		return nil, false
	}
	return c.gw, true
}

// Close forgets the conversation. Its persisted history is kept.
func (m *Manager) Close(childID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.convs[childID]; ok {
		delete(m.convs, childID)
		m.deps.Metrics.ConversationClosed()
	}
}

// Len returns the number of open conversations.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.convs)
}

// Send queues text behind any in-flight send for the same child. A send
// over the child's rate limit is answered with a "slow down" reply without
// touching the model or the history.
func (m *Manager) Send(ctx context.Context, childID, text string, opts SendOptions) (*SendResult, error) {
	c, ok := m.get(childID)
	if !ok {
		return nil, ErrUnknownConversation
	}
	if !c.limiter.Allow() {
		m.deps.Logger.Info("send rate limited", zap.String("child_id", childID))
		return c.gw.rateLimited(), nil
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.gw.SendMessage(ctx, text, opts)
}

func (m *Manager) get(childID string) (*conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[childID]
	return c, ok
}
