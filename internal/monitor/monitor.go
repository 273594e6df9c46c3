// Package monitor records guardian-facing notifications, urgent alerts and
// safety incidents per child, and derives conversation summaries from the
// stored chat history.
package monitor

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/abhisek/studybuddy/internal/safety"
	"github.com/abhisek/studybuddy/internal/store"
)

const (
	// MaxNotifications is how many notifications are kept per child.
	MaxNotifications = 100
	// MaxIncidents is how many incidents are kept per child.
	MaxIncidents = 50
	// IncidentContentLimit bounds the stored excerpt of incident content.
	IncidentContentLimit = 100
)

const (
	notificationsPrefix = "monitor:notifications:"
	alertsPrefix        = "monitor:alerts:"
	incidentsPrefix     = "monitor:incidents:"
)

// NotificationType classifies a parent notification.
type NotificationType string

const (
	NotifyContentBlocked       NotificationType = "content_blocked"
	NotifyResponseSanitized    NotificationType = "response_sanitized"
	NotifyInappropriateAttempt NotificationType = "inappropriate_attempt"
)

// Notification is a guardian-facing event about a child's conversation.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Severity  safety.Severity  `json:"severity"`
	Flags     []string         `json:"flags"`
	ChildID   string           `json:"childId"`
	Timestamp time.Time        `json:"timestamp"`
	Details   string           `json:"details,omitempty"`
}

// IncidentType classifies a safety incident.
type IncidentType string

const (
	IncidentInputBlocked        IncidentType = "input_blocked"
	IncidentUpstreamBlocked     IncidentType = "upstream_blocked"
	IncidentResponseSanitized   IncidentType = "response_sanitized"
	IncidentResponseSubstituted IncidentType = "response_substituted"
)

// Incident is a forensic record of a safety event. Content is truncated.
type Incident struct {
	ID        string       `json:"id"`
	Type      IncidentType `json:"type"`
	Content   string       `json:"content"`
	Flags     []string     `json:"flags"`
	Timestamp time.Time    `json:"timestamp"`
	UserID    string       `json:"userId"`
	LessonID  string       `json:"lessonId,omitempty"`
}

var notificationSchema = &store.Schema{
	Name: "parent-notifications",
	Definition: map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":     "object",
			"required": []any{"id", "type", "severity", "childId", "timestamp"},
			"properties": map[string]any{
				"id":        map[string]any{"type": "string"},
				"type":      map[string]any{"type": "string", "enum": []any{"content_blocked", "response_sanitized", "inappropriate_attempt"}},
				"severity":  map[string]any{"type": "string", "enum": []any{"low", "medium", "high"}},
				"flags":     map[string]any{"type": []any{"array", "null"}, "items": map[string]any{"type": "string"}},
				"childId":   map[string]any{"type": "string"},
				"timestamp": map[string]any{"type": "string"},
				"details":   map[string]any{"type": "string"},
			},
		},
	},
}

var incidentSchema = &store.Schema{
	Name: "safety-incidents",
	Definition: map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":     "object",
			"required": []any{"id", "type", "content", "timestamp", "userId"},
			"properties": map[string]any{
				"id":        map[string]any{"type": "string"},
				"type":      map[string]any{"type": "string"},
				"content":   map[string]any{"type": "string", "maxLength": IncidentContentLimit + 3},
				"flags":     map[string]any{"type": []any{"array", "null"}, "items": map[string]any{"type": "string"}},
				"timestamp": map[string]any{"type": "string"},
				"userId":    map[string]any{"type": "string"},
				"lessonId":  map[string]any{"type": "string"},
			},
		},
	},
}

// Service is the escalation and monitoring store. It is safe for
// concurrent use within one process.
type Service struct {
	kv      store.KV
	channel AlertChannel
	logger  *zap.Logger

	// Now is the clock. Tests replace it.
	Now func() time.Time

	mu sync.Mutex
}

// New creates a Service over kv. High-severity notifications are also sent
// to channel; a nil channel only logs them.
func New(kv store.KV, channel AlertChannel, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if channel == nil {
		channel = NewLogChannel(logger)
	}
	return &Service{
		kv:      kv,
		channel: channel,
		logger:  logger.Named("monitor"),
		Now:     time.Now,
	}
}

// NotifyParent records n for its child. High-severity notifications are
// also appended to the urgent alert list and sent out of band. A failing
// alert channel is logged, never returned.
func (s *Service) NotifyParent(ctx context.Context, n Notification) error {
	if n.ChildID == "" {
		return fmt.Errorf("notification has no child id")
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = s.Now().UTC()
	}
	if n.ID == "" {
		n.ID = s.newID(n.Timestamp)
	}
	n.Flags = slices.Clone(n.Flags)

	s.mu.Lock()
	err := appendRecord(ctx, s.kv, s.logger, notificationsPrefix+n.ChildID, notificationSchema, n, MaxNotifications)
	if err == nil && n.Severity == safety.SeverityHigh {
		err = appendRecord(ctx, s.kv, s.logger, alertsPrefix+n.ChildID, notificationSchema, n, 0)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.logger.Info("parent notified",
		zap.String("child_id", n.ChildID),
		zap.String("type", string(n.Type)),
		zap.String("severity", string(n.Severity)),
		zap.Strings("flags", n.Flags),
	)

	if n.Severity == safety.SeverityHigh {
		if err := s.channel.Send(ctx, n); err != nil {
			s.logger.Error("urgent alert delivery failed", zap.String("child_id", n.ChildID), zap.Error(err))
		}
	}
	return nil
}

// GetNotifications returns up to limit notifications, newest first.
// A non-positive limit returns all of them.
func (s *Service) GetNotifications(ctx context.Context, childID string, limit int) ([]Notification, error) {
	var list []Notification
	if err := s.load(ctx, notificationsPrefix+childID, notificationSchema, &list); err != nil {
		return nil, err
	}
	slices.Reverse(list)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// GetUrgentAlerts returns every retained urgent alert, newest first.
func (s *Service) GetUrgentAlerts(ctx context.Context, childID string) ([]Notification, error) {
	var list []Notification
	if err := s.load(ctx, alertsPrefix+childID, notificationSchema, &list); err != nil {
		return nil, err
	}
	slices.Reverse(list)
	return list, nil
}

// PruneUrgentAlerts drops urgent alerts older than before and reports how
// many were removed.
func (s *Service) PruneUrgentAlerts(ctx context.Context, childID string, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := alertsPrefix + childID
	var list []Notification
	if err := s.load(ctx, key, notificationSchema, &list); err != nil {
		return 0, err
	}
	kept := slices.DeleteFunc(list, func(n Notification) bool {
		return n.Timestamp.Before(before)
	})
	removed := len(list) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := store.SaveJSON(ctx, s.kv, key, kept); err != nil {
		return 0, fmt.Errorf("save urgent alerts: %w", err)
	}
	return removed, nil
}

// LogIncident records a safety incident for inc.UserID, keeping the most
// recent MaxIncidents.
func (s *Service) LogIncident(ctx context.Context, inc Incident) error {
	if inc.UserID == "" {
		return fmt.Errorf("incident has no user id")
	}
	if inc.Timestamp.IsZero() {
		inc.Timestamp = s.Now().UTC()
	}
	if inc.ID == "" {
		inc.ID = s.newID(inc.Timestamp)
	}
	inc.Content = truncate(inc.Content, IncidentContentLimit)
	inc.Flags = slices.Clone(inc.Flags)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := appendRecord(ctx, s.kv, s.logger, incidentsPrefix+inc.UserID, incidentSchema, inc, MaxIncidents); err != nil {
		return err
	}
	s.logger.Info("safety incident",
		zap.String("child_id", inc.UserID),
		zap.String("type", string(inc.Type)),
		zap.Strings("flags", inc.Flags),
	)
	return nil
}

// GetSafetyIncidents returns the retained incidents for a child, newest first.
func (s *Service) GetSafetyIncidents(ctx context.Context, childID string) ([]Incident, error) {
	var list []Incident
	if err := s.load(ctx, incidentsPrefix+childID, incidentSchema, &list); err != nil {
		return nil, err
	}
	slices.Reverse(list)
	return list, nil
}

// Clear deletes every notification, urgent alert and incident for a child.
func (s *Service) Clear(ctx context.Context, childID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, prefix := range []string{notificationsPrefix, alertsPrefix, incidentsPrefix} {
		if err := s.kv.Delete(ctx, prefix+childID); err != nil {
			return fmt.Errorf("clear %s: %w", prefix+childID, err)
		}
	}
	s.logger.Info("parent records cleared", zap.String("child_id", childID))
	return nil
}

// load reads a record list. A missing key is an empty list.
func (s *Service) load(ctx context.Context, key string, schema *store.Schema, v any) error {
	err := store.LoadJSON(ctx, s.kv, key, schema, v)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	return nil
}

// appendRecord adds rec to the list at key, dropping the oldest entries
// beyond max (0 means unbounded). An unreadable list is replaced.
func appendRecord[T any](ctx context.Context, kv store.KV, logger *zap.Logger, key string, schema *store.Schema, rec T, max int) error {
	var list []T
	err := store.LoadJSON(ctx, kv, key, schema, &list)
	if err != nil && !store.IsNotFound(err) {
		logger.Warn("record list unreadable, starting empty", zap.String("key", key), zap.Error(err))
		list = nil
	}
	list = append(list, rec)
	if max > 0 && len(list) > max {
		list = list[len(list)-max:]
	}
	if err := store.SaveJSON(ctx, kv, key, list); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *Service) newID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
