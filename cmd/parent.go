package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/studybuddy/internal/monitor"
	"github.com/abhisek/studybuddy/internal/reports"
	"github.com/abhisek/studybuddy/internal/ui/theme"
)

var parentCmd = &cobra.Command{
	Use:   "parent",
	Short: "Parent view: notifications, alerts, incidents and summaries",
}

var parentNotificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List recent notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, child, err := parentSetup(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		list, err := s.monitor.GetNotifications(cmd.Context(), child, limit)
		if err != nil {
			return fmt.Errorf("load notifications: %w", err)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No notifications.")
			return nil
		}
		for _, n := range list {
			printNotification(cmd.OutOrStdout(), n, false)
		}
		return nil
	},
}

var parentAlertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List urgent alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, child, err := parentSetup(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		if before, _ := cmd.Flags().GetString("prune-before"); before != "" {
			at, err := monitor.ParseDate(before, time.Now())
			if err != nil {
				return err
			}
			n, err := s.monitor.PruneUrgentAlerts(ctx, child, at)
			if err != nil {
				return fmt.Errorf("prune alerts: %w", err)
			}
			fmt.Fprintf(out, "Removed %d alert(s) before %s.\n", n, at.Format(monitor.DateLayout))
		}

		list, err := s.monitor.GetUrgentAlerts(ctx, child)
		if err != nil {
			return fmt.Errorf("load alerts: %w", err)
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No urgent alerts.")
			return nil
		}
		for _, n := range list {
			printNotification(out, n, true)
		}
		return nil
	},
}

var parentIncidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "List safety incidents",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, child, err := parentSetup(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		list, err := s.monitor.GetSafetyIncidents(cmd.Context(), child)
		if err != nil {
			return fmt.Errorf("load incidents: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No safety incidents.")
			return nil
		}
		for _, inc := range list {
			fmt.Fprintln(out, theme.Card.Render(strings.Join([]string{
				theme.Title.Render(string(inc.Type)) + "  " + theme.Subtitle.Render(inc.Timestamp.Local().Format("2006-01-02 15:04")),
				theme.Flags(inc.Flags),
				theme.Body.Render(inc.Content),
			}, "\n")))
		}
		return nil
	},
}

var parentSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize one day of conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, child, err := parentSetup(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		raw, _ := cmd.Flags().GetString("date")
		date, err := monitor.ParseDate(raw, time.Now())
		if err != nil {
			return err
		}
		sum, err := s.monitor.GenerateConversationSummary(cmd.Context(), child, date)
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, theme.Title.Render("Day of "+sum.Date))
		fmt.Fprintln(out, theme.Field("Messages", fmt.Sprint(sum.TotalMessages)))
		fmt.Fprintln(out, theme.Field("Learning time", fmt.Sprintf("%d min", sum.LearningMinutes())))
		fmt.Fprintln(out, theme.Field("Safety flags", fmt.Sprint(sum.SafetyFlags)))
		fmt.Fprintln(out, theme.Field("XP earned", fmt.Sprint(sum.XPEarned)))
		fmt.Fprintln(out, theme.Field("Topics", topicList(sum.TopicsDiscussed)))
		return nil
	},
}

var parentWeeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Show the week day by day, optionally archiving the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, child, err := parentSetup(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		raw, _ := cmd.Flags().GetString("end")
		end, err := monitor.ParseDate(raw, time.Now())
		if err != nil {
			return err
		}
		week, err := s.monitor.GetWeeklySummary(ctx, child, end)
		if err != nil {
			return fmt.Errorf("weekly summary: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, theme.Title.Render(fmt.Sprintf("Week %s to %s", week.StartDate, week.EndDate)))
		var longest int64
		for _, d := range week.Days {
			longest = max(longest, d.LearningSeconds)
		}
		for _, d := range week.Days {
			fmt.Fprintf(out, "%s  %s  %3d min  %2d msgs  %s\n",
				theme.Subtitle.Render(d.Date),
				theme.Bar(float64(d.LearningSeconds), float64(longest), 20),
				d.LearningMinutes(),
				d.TotalMessages,
				topicList(d.TopicsDiscussed),
			)
		}

		if archive, _ := cmd.Flags().GetBool("archive"); archive {
			if !s.cfg.Reports.MinIO.Enabled() {
				return errors.New("report archive needs reports.minio.endpoint")
			}
			a, err := reports.NewMinIOArchiver(ctx, s.cfg.Reports.MinIO, s.logger)
			if err != nil {
				return err
			}
			report, err := reports.BuildWeekly(ctx, s.monitor, child, end, time.Now())
			if err != nil {
				return err
			}
			loc, err := a.Archive(ctx, report)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, theme.Hint.Render(fmt.Sprintf("Archived to %s/%s", loc.Bucket, loc.Key)))
			if loc.URL != "" {
				fmt.Fprintln(out, theme.Hint.Render(loc.URL))
			}
		}
		return nil
	},
}

var parentDashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show weekly dashboard statistics",
	RunE:  runDashboard,
}

func init() {
	parentCmd.PersistentFlags().String("child", "local-child", "Child ID")

	parentNotificationsCmd.Flags().IntP("limit", "n", 20, "Number of notifications to show (0 = all)")
	parentAlertsCmd.Flags().String("prune-before", "", "Drop alerts older than this date (YYYY-MM-DD) first")
	parentSummaryCmd.Flags().String("date", "", "Day to summarize (YYYY-MM-DD, default today UTC)")
	parentWeeklyCmd.Flags().String("end", "", "Last day of the week (YYYY-MM-DD, default today UTC)")
	parentWeeklyCmd.Flags().Bool("archive", false, "Also upload the weekly report to the MinIO archive")
	parentDashboardCmd.Flags().String("end", "", "Last day of the week (YYYY-MM-DD, default today UTC)")

	parentCmd.AddCommand(parentNotificationsCmd)
	parentCmd.AddCommand(parentAlertsCmd)
	parentCmd.AddCommand(parentIncidentsCmd)
	parentCmd.AddCommand(parentSummaryCmd)
	parentCmd.AddCommand(parentWeeklyCmd)
	parentCmd.AddCommand(parentDashboardCmd)
}

func parentSetup(cmd *cobra.Command) (*stack, string, error) {
	child, _ := cmd.Flags().GetString("child")
	if child == "" {
		return nil, "", errors.New("--child is required")
	}
	s, err := openStack(cmd)
	if err != nil {
		return nil, "", err
	}
	return s, child, nil
}

func printNotification(out io.Writer, n monitor.Notification, urgent bool) {
	card := theme.Card
	if urgent {
		card = theme.UrgentCard
	}
	lines := []string{
		theme.Title.Render(string(n.Type)) + "  " + theme.Severity(string(n.Severity)) + "  " +
			theme.Subtitle.Render(n.Timestamp.Local().Format("2006-01-02 15:04")),
		theme.Flags(n.Flags),
	}
	if n.Details != "" {
		lines = append(lines, theme.Body.Render(n.Details))
	}
	fmt.Fprintln(out, card.Render(strings.Join(lines, "\n")))
}

func topicList(topics []string) string {
	if len(topics) == 0 {
		return "-"
	}
	return strings.Join(topics, ", ")
}
