package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/studybuddy/internal/monitor"
	"github.com/abhisek/studybuddy/internal/ui/theme"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show learning statistics for the last seven days",
	RunE:  runDashboard,
}

func init() {
	statsCmd.Flags().String("child", "local-child", "Child ID")
	statsCmd.Flags().String("end", "", "Last day of the week (YYYY-MM-DD, default today UTC)")
}

func runDashboard(cmd *cobra.Command, _ []string) error {
	s, child, err := parentSetup(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	raw, _ := cmd.Flags().GetString("end")
	end, err := monitor.ParseDate(raw, time.Now())
	if err != nil {
		return err
	}
	st, err := s.monitor.GetParentDashboardStats(cmd.Context(), child, end)
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, theme.Title.Render(fmt.Sprintf("%s  %s to %s", st.ChildID, st.StartDate, st.EndDate)))
	fmt.Fprintln(out, theme.Field("Active days", fmt.Sprintf("%d of 7", st.ConversationDays)))
	fmt.Fprintln(out, theme.Field("Messages", fmt.Sprint(st.TotalMessages)))
	fmt.Fprintln(out, theme.Field("Avg learning time", fmt.Sprintf("%d min", st.AverageLearningSeconds/60)))
	fmt.Fprintln(out, theme.Field("Safety flags", fmt.Sprint(st.TotalSafetyFlags)))
	fmt.Fprintln(out, theme.Field("XP earned", fmt.Sprint(st.XPEarned)))
	fmt.Fprintln(out, theme.Field("Topics", topicList(st.Topics)))
	return nil
}
