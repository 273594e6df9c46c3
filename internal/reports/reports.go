// Package reports builds weekly parent reports and archives them to object
// storage.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/abhisek/studybuddy/internal/monitor"
)

// WeeklyReport is the archived view of one child's week.
type WeeklyReport struct {
	ChildID     string                 `json:"childId"`
	GeneratedAt time.Time              `json:"generatedAt"`
	Stats       monitor.DashboardStats `json:"stats"`
	Week        monitor.WeeklySummary  `json:"week"`
	Incidents   []monitor.Incident     `json:"incidents"`
}

// Source is the part of the monitor a report is built from.
type Source interface {
	GetWeeklySummary(ctx context.Context, childID string, endDate time.Time) (monitor.WeeklySummary, error)
	GetParentDashboardStats(ctx context.Context, childID string, endDate time.Time) (monitor.DashboardStats, error)
	GetSafetyIncidents(ctx context.Context, childID string) ([]monitor.Incident, error)
}

// BuildWeekly assembles the report for the week ending on endDate. Only
// incidents inside that week are included.
func BuildWeekly(ctx context.Context, src Source, childID string, endDate, now time.Time) (WeeklyReport, error) {
	week, err := src.GetWeeklySummary(ctx, childID, endDate)
	if err != nil {
		return WeeklyReport{}, fmt.Errorf("weekly summary: %w", err)
	}
	stats, err := src.GetParentDashboardStats(ctx, childID, endDate)
	if err != nil {
		return WeeklyReport{}, fmt.Errorf("dashboard stats: %w", err)
	}
	all, err := src.GetSafetyIncidents(ctx, childID)
	if err != nil {
		return WeeklyReport{}, fmt.Errorf("safety incidents: %w", err)
	}

	start, _ := time.Parse(monitor.DateLayout, week.StartDate)
	end, _ := time.Parse(monitor.DateLayout, week.EndDate)
	end = end.AddDate(0, 0, 1)

	incidents := []monitor.Incident{}
	for _, inc := range all {
		at := inc.Timestamp.UTC()
		if !at.Before(start) && at.Before(end) {
			incidents = append(incidents, inc)
		}
	}

	return WeeklyReport{
		ChildID:     childID,
		GeneratedAt: now.UTC(),
		Stats:       stats,
		Week:        week,
		Incidents:   incidents,
	}, nil
}

// ObjectKey is where a child's weekly report is stored.
func ObjectKey(childID, endDate string) string {
	return fmt.Sprintf("weekly/%s/%s.json", childID, endDate)
}
