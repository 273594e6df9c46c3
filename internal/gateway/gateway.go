// Package gateway mediates every message between a child and the model. A
// Gateway owns one child's conversation: it screens input, builds the
// prompt, calls the provider, screens and rewrites the reply, persists the
// history, and escalates safety events to the guardian-facing monitor.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/studybuddy/internal/chat"
	"github.com/abhisek/studybuddy/internal/learner"
	"github.com/abhisek/studybuddy/internal/llm"
	"github.com/abhisek/studybuddy/internal/monitor"
	"github.com/abhisek/studybuddy/internal/observability"
	"github.com/abhisek/studybuddy/internal/prompt"
	"github.com/abhisek/studybuddy/internal/safety"
	"github.com/abhisek/studybuddy/internal/store"
)

// DefaultModelTimeout bounds a single model call when Config leaves it unset.
const DefaultModelTimeout = 30 * time.Second

// FlagUpstreamBlocked is reported when the provider refuses to answer.
const FlagUpstreamBlocked = "upstream_blocked"

var (
	// ErrConversationBusy is returned when a send is already in flight.
	ErrConversationBusy = errors.New("gateway: a message is already being processed")
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("gateway: message is empty")
)

// Escalator receives guardian-facing events. *monitor.Service implements it.
type Escalator interface {
	NotifyParent(ctx context.Context, n monitor.Notification) error
	LogIncident(ctx context.Context, inc monitor.Incident) error
}

// Deps are the collaborators shared by every conversation.
type Deps struct {
	Provider  llm.Provider
	Store     store.KV
	Detector  *safety.Detector
	Escalator Escalator
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// Config tunes one conversation.
type Config struct {
	MaxHistory   int              `mapstructure:"max_history"`
	Locale       learner.Language `mapstructure:"locale"`
	ModelTimeout time.Duration    `mapstructure:"model_timeout"`
	MaxTokens    int              `mapstructure:"-"`
	Temperature  float64          `mapstructure:"-"`
}

// DefaultConfig returns the gateway defaults.
func DefaultConfig() Config {
	return Config{
		MaxHistory:   chat.DefaultMaxTurns,
		Locale:       learner.LanguageEnglish,
		ModelTimeout: DefaultModelTimeout,
	}
}

// Outcome is the terminal classification of one send.
type Outcome string

const (
	OutcomeDelivered       Outcome = "delivered"
	OutcomeSanitized       Outcome = "sanitized"
	OutcomeSubstituted     Outcome = "substituted"
	OutcomeBlocked         Outcome = "blocked"
	OutcomeUpstreamBlocked Outcome = "upstream_blocked"
	OutcomeFailed          Outcome = "failed"
	OutcomeRateLimited     Outcome = "rate_limited"
)

// SendOptions carries the optional callbacks of a send. Callbacks run on
// the sending goroutine except OnChunk, which may also run on the model
// goroutine. Chunks carry screened text released a sentence at a time.
// A panicking callback is logged and ignored.
type SendOptions struct {
	OnChunk      func(chunk string)
	OnSafetyFlag func(flags []string)
	OnError      func(err error)
}

// SendResult is what the child is shown.
type SendResult struct {
	Message     chat.Turn    `json:"message"`
	Outcome     Outcome      `json:"outcome"`
	Blocked     bool         `json:"blocked"`
	BlockReason string       `json:"blockReason,omitempty"`
	SafetyFlags []string     `json:"safetyFlags,omitempty"`
	ErrorTag    llm.ErrorTag `json:"errorTag,omitempty"`
	// Replaced is set when chunks were streamed but Message differs from
	// their concatenation. The UI must overwrite the streamed bubble.
	Replaced bool `json:"replaced,omitempty"`
}

// Gateway is one child's conversation. SendMessage must not be called
// concurrently; a second call while one is in flight fails fast with
// ErrConversationBusy. The other methods are safe for concurrent use.
type Gateway struct {
	provider  llm.Provider
	kv        store.KV
	detector  *safety.Detector
	escalator Escalator
	metrics   *observability.Metrics
	logger    *zap.Logger
	cfg       Config
	profile   learner.UserProfile
	replies   replySet

	// Now is the clock. Tests replace it.
	Now func() time.Time

	busy  atomic.Bool
	state atomic.Int32

	mu       sync.Mutex
	history  *chat.History
	lesson   *learner.LessonContext
	progress *learner.ConversationContext
}

// New opens the conversation for profile and loads its persisted history.
// An unreadable history is logged and the conversation starts empty.
func New(ctx context.Context, deps Deps, profile learner.UserProfile, cfg Config) (*Gateway, error) {
	if deps.Provider == nil {
		return nil, fmt.Errorf("gateway: provider is required")
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = chat.DefaultMaxTurns
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = DefaultModelTimeout
	}
	if cfg.Locale == "" {
		cfg.Locale = learner.LanguageEnglish
	}
	if profile.Language == "" {
		profile.Language = cfg.Locale
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	kv := deps.Store
	if kv == nil {
		kv = store.NewMemory()
	}
	detector := deps.Detector
	if detector == nil {
		detector = safety.Default()
	}
	escalator := deps.Escalator
	if escalator == nil {
		escalator = nopEscalator{}
	}

	g := &Gateway{
		provider:  deps.Provider,
		kv:        kv,
		detector:  detector,
		escalator: escalator,
		metrics:   deps.Metrics,
		logger:    logger.Named("gateway").With(zap.String("child_id", profile.ID)),
		cfg:       cfg,
		profile:   profile,
		replies:   repliesFor(profile.Language),
		Now:       time.Now,
		history:   chat.NewHistory(cfg.MaxHistory),
		progress:  &learner.ConversationContext{},
	}
	g.loadHistory(ctx)
	return g, nil
}

// Profile returns the child profile the conversation was opened with.
func (g *Gateway) Profile() learner.UserProfile {
	return g.profile
}

// State returns the pipeline state of the in-flight send, or StateIdle.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// History returns a copy of the conversation, oldest first.
func (g *Gateway) History() []chat.Turn {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.history.Turns()
}

// ClearHistory empties the conversation and deletes the persisted copy.
// The in-memory history is cleared even if the delete fails.
func (g *Gateway) ClearHistory(ctx context.Context) error {
	g.mu.Lock()
	g.history.Clear()
	g.mu.Unlock()

	err := g.kv.Delete(ctx, chat.HistoryKey(g.profile.ID))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		g.logger.Warn("failed to delete persisted history", zap.Error(err))
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// UpdateLessonContext narrows the conversation to a lesson. Nil returns to
// open-domain tutoring.
func (g *Gateway) UpdateLessonContext(lesson *learner.LessonContext) error {
	if err := lesson.Validate(); err != nil {
		return fmt.Errorf("invalid lesson context: %w", err)
	}
	g.mu.Lock()
	g.lesson = lesson.Clone()
	g.mu.Unlock()
	return nil
}

// UpdateProgress records the gamification signals folded into the tone of
// later replies.
func (g *Gateway) UpdateProgress(streak, xp int, recentTopics []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.progress = &learner.ConversationContext{
		CurrentStreak: streak,
		XP:            xp,
		RecentTopics:  append([]string(nil), recentTopics...),
	}
}

// SuggestedQuestions returns follow-up questions for the current lesson.
func (g *Gateway) SuggestedQuestions() []string {
	g.mu.Lock()
	lesson := g.lesson
	g.mu.Unlock()
	return prompt.SuggestedQuestions(g.profile, lesson)
}

// SendMessage runs one message through the pipeline. The only errors are
// ErrEmptyMessage and ErrConversationBusy; every safety, model and
// persistence problem resolves to a SendResult.
func (g *Gateway) SendMessage(ctx context.Context, text string, opts SendOptions) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if !g.busy.CompareAndSwap(false, true) {
		return nil, ErrConversationBusy
	}
	defer g.busy.Store(false)
	defer g.setState(StateIdle)

	res := g.send(ctx, text, opts)
	g.metrics.ObserveOutcome(string(res.Outcome))
	return res, nil
}

// sendState is the per-call scratch data threaded through the pipeline.
type sendState struct {
	opts     SendOptions
	lesson   *learner.LessonContext
	progress *learner.ConversationContext
	stream   *streamTracker
}

func (g *Gateway) send(ctx context.Context, text string, opts SendOptions) (res *SendResult) {
	st := &sendState{opts: opts}
	g.mu.Lock()
	st.lesson = g.lesson.Clone()
	st.progress = g.progress
	g.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("send pipeline panicked", zap.Any("panic", r), zap.Stack("stack"))
			res = g.failed(st, fmt.Errorf("send pipeline panicked: %v", r))
		}
	}()

	g.setState(StateInputChecking)
	input := g.detector.ValidateInput(text, g.profile.Age)
	g.reportFlags(st, "input", input.Flags)
	if input.Blocking() {
		return g.blocked(ctx, st, text, input)
	}

	g.setState(StatePromptBuilding)
	req := g.buildRequest(text, st)

	g.setState(StateModelCalling)
	resp, err := g.callModel(ctx, req, st)
	if err != nil {
		return g.failed(st, err)
	}
	if resp.Blocked {
		return g.upstreamBlocked(ctx, st, text, input, resp)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return g.failed(st, &llm.ErrInvalidResponse{Err: errors.New("empty reply")})
	}

	g.setState(StateOutputChecking)
	output := g.detector.ValidateOutput(resp.Content, g.profile.Age)
	g.reportFlags(st, "output", output.Flags)

	outcome := OutcomeDelivered
	reply := g.detector.DetectPII(resp.Content).SanitizedText
	var replyFlags []string
	switch {
	case output.Severity == safety.SeverityHigh:
		outcome = OutcomeSubstituted
		reply = g.replies.substituted
		replyFlags = output.Flags
	case output.Blocking():
		g.setState(StateSanitizing)
		outcome = OutcomeSanitized
		reply = g.detector.SanitizeOutput(resp.Content, g.profile.Age)
		replyFlags = output.Flags
	}

	if outcome != OutcomeSubstituted {
		st.stream.flush(reply)
	}
	assistantTurn := g.appendExchange(ctx, text, input.Flags, reply, replyFlags, false, st)

	switch outcome {
	case OutcomeSubstituted:
		g.logger.Info("model reply substituted", zap.Strings("flags", output.Flags))
		g.escalate(ctx, monitor.IncidentResponseSubstituted, monitor.NotifyContentBlocked,
			safety.SeverityHigh, g.detector.SanitizeOutput(resp.Content, g.profile.Age), output, st)
	case OutcomeSanitized:
		g.logger.Info("model reply sanitized", zap.Strings("flags", output.Flags))
		g.escalate(ctx, monitor.IncidentResponseSanitized, monitor.NotifyResponseSanitized,
			output.Severity, reply, output, st)
	}

	return &SendResult{
		Message:     assistantTurn,
		Outcome:     outcome,
		SafetyFlags: mergeFlags(input.Flags, output.Flags),
		Replaced:    st.stream.replaced(reply),
	}
}

// blocked answers a screened-out message without calling the model. The
// user turn is kept with PII redacted for the history view, but the exchange
// is withheld from every later model request.
func (g *Gateway) blocked(ctx context.Context, st *sendState, text string, input safety.Result) *SendResult {
	g.setState(StateBlocked)
	g.logger.Info("input blocked",
		zap.String("reason", string(input.Reason)),
		zap.String("severity", string(input.Severity)),
		zap.Strings("flags", input.Flags),
	)

	redacted := g.detector.DetectPII(text).SanitizedText
	reply := g.replies.blockedReply(input.Reason)
	assistantTurn := g.appendExchange(ctx, redacted, input.Flags, reply, nil, true, st)

	inc := monitor.Incident{
		Type:    monitor.IncidentInputBlocked,
		Content: redacted,
		Flags:   input.Flags,
	}
	g.record(ctx, inc, monitor.Notification{
		Type:     monitor.NotifyInappropriateAttempt,
		Severity: input.Severity,
		Flags:    input.Flags,
		Details:  input.BlockedReason,
	}, st)

	return &SendResult{
		Message:     assistantTurn,
		Outcome:     OutcomeBlocked,
		Blocked:     true,
		BlockReason: input.BlockedReason,
		SafetyFlags: input.Flags,
	}
}

func (g *Gateway) upstreamBlocked(ctx context.Context, st *sendState, text string, input safety.Result, resp *llm.Response) *SendResult {
	g.setState(StateUpstreamBlocked)
	g.logger.Info("model refused to answer", zap.String("block_reason", resp.BlockReason))

	flags := []string{FlagUpstreamBlocked}
	g.reportFlags(st, "upstream", flags)

	reply := g.replies.upstreamBlocked
	assistantTurn := g.appendExchange(ctx, text, input.Flags, reply, flags, true, st)

	details := "model refused to answer"
	if resp.BlockReason != "" {
		details += ": " + resp.BlockReason
	}
	g.record(ctx, monitor.Incident{
		Type:    monitor.IncidentUpstreamBlocked,
		Content: text,
		Flags:   flags,
	}, monitor.Notification{
		Type:     monitor.NotifyContentBlocked,
		Severity: safety.SeverityMedium,
		Flags:    flags,
		Details:  details,
	}, st)

	return &SendResult{
		Message:     assistantTurn,
		Outcome:     OutcomeUpstreamBlocked,
		Blocked:     true,
		BlockReason: details,
		SafetyFlags: mergeFlags(input.Flags, flags),
		Replaced:    st.stream.replaced(reply),
	}
}

// failed turns an error into a friendly terminal reply. Nothing is
// appended to the history.
func (g *Gateway) failed(st *sendState, err error) *SendResult {
	tag := llm.Tag(err)
	g.logger.Warn("model call failed", zap.String("tag", string(tag)), zap.Error(err))
	g.metrics.ObserveProviderError(g.provider.ModelID(), string(tag))
	if st.opts.OnError != nil {
		g.callback("OnError", func() { st.opts.OnError(err) })
	}

	reply := g.replies.failedReply(tag)
	return &SendResult{
		Message:  chat.NewTurn(chat.RoleAssistant, reply, g.Now().UTC(), g.turnMeta(st, nil, false)),
		Outcome:  OutcomeFailed,
		ErrorTag: tag,
		Replaced: st.stream.replaced(reply),
	}
}

// rateLimited is the reply for a send the Manager refused to run.
func (g *Gateway) rateLimited() *SendResult {
	g.metrics.ObserveOutcome(string(OutcomeRateLimited))
	return &SendResult{
		Message: chat.NewTurn(chat.RoleAssistant, g.replies.rateLimited, g.Now().UTC(), nil),
		Outcome: OutcomeRateLimited,
	}
}

func (g *Gateway) buildRequest(text string, st *sendState) llm.Request {
	system := prompt.BuildSystemInstructions(g.profile, st.lesson, st.progress)

	var turns []chat.Turn
	for _, t := range g.History() {
		if !t.Withheld() {
			turns = append(turns, t)
		}
	}
	// Vendors expect the conversation to open with a user turn.
	for len(turns) > 0 && turns[0].Role != chat.RoleUser {
		turns = turns[1:]
	}
	msgs := make([]llm.Message, 0, len(turns)+1)
	for _, t := range turns {
		msgs = append(msgs, llm.Message{Role: llm.Role(t.Role), Content: t.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: prompt.BuildUserPrompt(text, st.lesson)})

	return llm.Request{
		System:      system,
		Messages:    msgs,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		UserText:    text,
	}
}

type modelResult struct {
	resp *llm.Response
	err  error
}

// callModel runs the provider on its own goroutine and waits at most
// ModelTimeout. On timeout the call is abandoned: it may still finish, but
// its chunks and result are discarded.
func (g *Gateway) callModel(ctx context.Context, req llm.Request, st *sendState) (*llm.Response, error) {
	ctx, cancel := context.WithTimeout(llm.WithPurpose(ctx, llm.PurposeChat), g.cfg.ModelTimeout)
	defer cancel()

	if st.opts.OnChunk != nil {
		st.stream = &streamTracker{
			onChunk: func(c string) {
				g.callback("OnChunk", func() { st.opts.OnChunk(c) })
			},
			screen: func(text string) string {
				return g.detector.SanitizeOutput(text, g.profile.Age)
			},
		}
	}

	done := make(chan modelResult, 1)
	start := g.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				g.logger.Error("provider panicked", zap.Any("panic", r))
				done <- modelResult{err: fmt.Errorf("provider panicked: %v", r)}
			}
		}()
		var (
			resp *llm.Response
			err  error
		)
		if st.stream != nil {
			resp, err = g.provider.GenerateStream(ctx, req, st.stream.emit)
		} else {
			resp, err = g.provider.Generate(ctx, req)
		}
		done <- modelResult{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		g.metrics.ObserveModelLatency(g.Now().Sub(start))
		if r.err == nil && r.resp == nil {
			r.err = &llm.ErrInvalidResponse{Err: errors.New("provider returned no response")}
		}
		return r.resp, r.err
	case <-ctx.Done():
		st.stream.abandon()
		return nil, ctx.Err()
	}
}

// appendExchange appends the user turn and the reply, then persists the
// whole history. A failed write is logged and the conversation carries on
// in memory. It returns the appended reply. A withheld exchange stays in the
// history but is left out of later model requests.
func (g *Gateway) appendExchange(ctx context.Context, userText string, userFlags []string, reply string, replyFlags []string, withheld bool, st *sendState) chat.Turn {
	g.setState(StateHistoryAppend)
	now := g.Now().UTC()
	userTurn := chat.NewTurn(chat.RoleUser, userText, now, g.turnMeta(st, userFlags, withheld))
	assistantTurn := chat.NewTurn(chat.RoleAssistant, reply, now, g.turnMeta(st, replyFlags, withheld))

	g.mu.Lock()
	g.history.Append(userTurn, assistantTurn)
	turns := g.history.Turns()
	g.mu.Unlock()

	if err := store.SaveJSON(context.WithoutCancel(ctx), g.kv, chat.HistoryKey(g.profile.ID), turns); err != nil {
		g.logger.Warn("failed to persist history", zap.Error(err))
	} else {
		g.setState(StatePersisted)
	}
	return assistantTurn
}

func (g *Gateway) loadHistory(ctx context.Context) {
	var turns []chat.Turn
	err := store.LoadJSON(ctx, g.kv, chat.HistoryKey(g.profile.ID), chat.HistorySchema, &turns)
	switch {
	case store.IsNotFound(err):
		return
	case err != nil:
		g.logger.Warn("history unavailable, starting empty", zap.Error(err))
		return
	}
	g.history.Replace(turns)
	g.logger.Debug("history loaded", zap.Int("turns", g.history.Len()))
}

func (g *Gateway) turnMeta(st *sendState, flags []string, withheld bool) *chat.TurnMetadata {
	var lessonID, contentType string
	if st.lesson != nil {
		lessonID, contentType = st.lesson.LessonID, st.lesson.ContentType
	}
	if lessonID == "" && contentType == "" && len(flags) == 0 && !withheld {
		return nil
	}
	return &chat.TurnMetadata{
		LessonID:    lessonID,
		ContentType: contentType,
		SafetyFlags: append([]string(nil), flags...),
		Withheld:    withheld,
	}
}

func (g *Gateway) escalate(ctx context.Context, it monitor.IncidentType, nt monitor.NotificationType, sev safety.Severity, content string, res safety.Result, st *sendState) {
	g.record(ctx, monitor.Incident{
		Type:    it,
		Content: content,
		Flags:   res.Flags,
	}, monitor.Notification{
		Type:     nt,
		Severity: sev,
		Flags:    res.Flags,
		Details:  res.BlockedReason,
	}, st)
}

// record logs the incident and notifies the parent. Failures are logged;
// the child's reply never depends on them.
func (g *Gateway) record(ctx context.Context, inc monitor.Incident, n monitor.Notification, st *sendState) {
	ctx = context.WithoutCancel(ctx)
	inc.UserID = g.profile.ID
	if st.lesson != nil {
		inc.LessonID = st.lesson.LessonID
	}
	if err := g.escalator.LogIncident(ctx, inc); err != nil {
		g.logger.Warn("failed to log safety incident", zap.String("type", string(inc.Type)), zap.Error(err))
	}

	n.ChildID = g.profile.ID
	if err := g.escalator.NotifyParent(ctx, n); err != nil {
		g.logger.Warn("failed to notify parent", zap.String("type", string(n.Type)), zap.Error(err))
		return
	}
	g.metrics.ObserveNotification(string(n.Type), string(n.Severity))
}

func (g *Gateway) reportFlags(st *sendState, stage string, flags []string) {
	if len(flags) == 0 {
		return
	}
	g.metrics.ObserveFlags(stage, flags)
	if st.opts.OnSafetyFlag != nil {
		cp := append([]string(nil), flags...)
		g.callback("OnSafetyFlag", func() { st.opts.OnSafetyFlag(cp) })
	}
}

func (g *Gateway) callback(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("callback panicked", zap.String("callback", name), zap.Any("panic", r))
		}
	}()
	fn()
}

func (g *Gateway) setState(s State) {
	if State(g.state.Swap(int32(s))) != s {
		g.logger.Debug("state", zap.Stringer("state", s))
	}
}

func mergeFlags(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, f := range list {
			if !slices.Contains(out, f) {
				out = append(out, f)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type nopEscalator struct{}

func (nopEscalator) NotifyParent(context.Context, monitor.Notification) error { return nil }
func (nopEscalator) LogIncident(context.Context, monitor.Incident) error      { return nil }
