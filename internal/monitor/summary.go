package monitor

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/abhisek/studybuddy/internal/chat"
)

const (
	// DateLayout formats summary dates.
	DateLayout = "2006-01-02"

	maxTopics        = 5
	minTopicWordLen  = 4
	xpPerCleanTurn   = 5
	daysPerWeek      = 7
	secondsPerMinute = 60
)

var stopWords = map[string]bool{
	"about": true, "after": true, "again": true, "also": true, "been": true, "before": true,
	"being": true, "because": true, "could": true, "does": true, "doing": true, "down": true,
	"each": true, "from": true, "have": true, "having": true, "here": true, "into": true,
	"just": true, "know": true, "like": true, "make": true, "many": true, "more": true,
	"most": true, "much": true, "need": true, "only": true, "other": true, "over": true,
	"please": true, "really": true, "same": true, "should": true, "some": true, "such": true,
	"tell": true, "than": true, "thank": true, "thanks": true, "that": true, "their": true,
	"them": true, "then": true, "there": true, "these": true, "they": true, "thing": true,
	"things": true, "think": true, "this": true, "those": true, "very": true, "want": true,
	"were": true, "what": true, "when": true, "where": true, "which": true, "while": true,
	"will": true, "with": true, "would": true, "your": true, "yours": true, "help": true,
	"explain": true, "okay": true, "yeah": true, "hello": true,
}

// ConversationSummary describes one child's conversation on one UTC day.
type ConversationSummary struct {
	ChildID         string   `json:"childId"`
	Date            string   `json:"date"`
	TotalMessages   int      `json:"totalMessages"`
	TopicsDiscussed []string `json:"topicsDiscussed"`
	SafetyFlags     int      `json:"safetyFlags"`
	LearningSeconds int64    `json:"learningTimeSeconds"`
	XPEarned        int      `json:"xpEarned"`
}

// LearningMinutes rounds the learning time down to whole minutes.
func (s ConversationSummary) LearningMinutes() int64 {
	return s.LearningSeconds / secondsPerMinute
}

// WeeklySummary holds seven daily summaries, oldest first.
type WeeklySummary struct {
	ChildID   string                `json:"childId"`
	StartDate string                `json:"startDate"`
	EndDate   string                `json:"endDate"`
	Days      []ConversationSummary `json:"days"`
}

// DashboardStats aggregates a week for the parent dashboard.
type DashboardStats struct {
	ChildID                string   `json:"childId"`
	StartDate              string   `json:"startDate"`
	EndDate                string   `json:"endDate"`
	ConversationDays       int      `json:"conversationDays"`
	TotalMessages          int      `json:"totalMessages"`
	TotalSafetyFlags       int      `json:"totalSafetyFlags"`
	AverageLearningSeconds int64    `json:"averageLearningTimeSeconds"`
	Topics                 []string `json:"topics"`
	XPEarned               int      `json:"xpEarned"`
}

// GenerateConversationSummary summarizes the stored history for the UTC day
// containing date.
func (s *Service) GenerateConversationSummary(ctx context.Context, childID string, date time.Time) (ConversationSummary, error) {
	turns, err := s.history(ctx, childID)
	if err != nil {
		return ConversationSummary{}, err
	}
	return summarize(childID, turns, dayStart(date)), nil
}

// GetWeeklySummary composes the seven daily summaries ending on endDate.
func (s *Service) GetWeeklySummary(ctx context.Context, childID string, endDate time.Time) (WeeklySummary, error) {
	turns, err := s.history(ctx, childID)
	if err != nil {
		return WeeklySummary{}, err
	}
	return weekly(childID, turns, dayStart(endDate)), nil
}

// GetParentDashboardStats aggregates the week ending on endDate. Average
// learning time is taken over the days with at least one message.
func (s *Service) GetParentDashboardStats(ctx context.Context, childID string, endDate time.Time) (DashboardStats, error) {
	week, err := s.GetWeeklySummary(ctx, childID, endDate)
	if err != nil {
		return DashboardStats{}, err
	}

	stats := DashboardStats{
		ChildID:   childID,
		StartDate: week.StartDate,
		EndDate:   week.EndDate,
		Topics:    []string{},
	}
	seen := make(map[string]bool)
	var learning int64
	for _, d := range week.Days {
		if d.TotalMessages == 0 {
			continue
		}
		stats.ConversationDays++
		stats.TotalMessages += d.TotalMessages
		stats.TotalSafetyFlags += d.SafetyFlags
		stats.XPEarned += d.XPEarned
		learning += d.LearningSeconds
		for _, t := range d.TopicsDiscussed {
			if !seen[t] {
				seen[t] = true
				stats.Topics = append(stats.Topics, t)
			}
		}
	}
	if stats.ConversationDays > 0 {
		stats.AverageLearningSeconds = learning / int64(stats.ConversationDays)
	}
	return stats, nil
}

func (s *Service) history(ctx context.Context, childID string) ([]chat.Turn, error) {
	var turns []chat.Turn
	if err := s.load(ctx, chat.HistoryKey(childID), chat.HistorySchema, &turns); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return turns, nil
}

func weekly(childID string, turns []chat.Turn, end time.Time) WeeklySummary {
	start := end.AddDate(0, 0, -(daysPerWeek - 1))
	w := WeeklySummary{
		ChildID:   childID,
		StartDate: start.Format(DateLayout),
		EndDate:   end.Format(DateLayout),
		Days:      make([]ConversationSummary, 0, daysPerWeek),
	}
	for i := range daysPerWeek {
		w.Days = append(w.Days, summarize(childID, turns, start.AddDate(0, 0, i)))
	}
	return w
}

func summarize(childID string, turns []chat.Turn, day time.Time) ConversationSummary {
	next := day.AddDate(0, 0, 1)
	sum := ConversationSummary{
		ChildID:         childID,
		Date:            day.Format(DateLayout),
		TopicsDiscussed: []string{},
	}

	var first, last time.Time
	var userTexts []string
	for _, t := range turns {
		at := t.Timestamp.UTC()
		if at.Before(day) || !at.Before(next) {
			continue
		}
		sum.TotalMessages++
		if first.IsZero() || at.Before(first) {
			first = at
		}
		if at.After(last) {
			last = at
		}
		if t.Flagged() {
			sum.SafetyFlags++
		}
		if t.Role == chat.RoleUser {
			userTexts = append(userTexts, t.Content)
			if !t.Flagged() {
				sum.XPEarned += xpPerCleanTurn
			}
		}
	}

	if sum.TotalMessages > 0 {
		sum.LearningSeconds = int64(last.Sub(first) / time.Second)
	}
	sum.TopicsDiscussed = extractTopics(userTexts, maxTopics)
	return sum
}

// extractTopics ranks words longer than three letters by frequency,
// skipping stop words. Ties are broken alphabetically.
func extractTopics(texts []string, n int) []string {
	counts := make(map[string]int)
	for _, text := range texts {
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r)
		})
		for _, w := range words {
			if utf8.RuneCountInString(w) < minTopicWordLen || stopWords[w] {
				continue
			}
			counts[w]++
		}
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	slices.SortFunc(words, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date, or returns today (UTC) for "".
func ParseDate(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return dayStart(now), nil
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}
