package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/studybuddy/internal/chat"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset a child's conversation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		child, _ := cmd.Flags().GetString("child")
		if child == "" {
			return fmt.Errorf("--child is required")
		}
		s, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		if err := s.kv.Delete(ctx, chat.HistoryKey(child)); err != nil {
			return fmt.Errorf("delete history: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Conversation history for %s cleared.\n", child)

		if all, _ := cmd.Flags().GetBool("all"); all {
			if err := s.monitor.Clear(ctx, child); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Parent notifications, alerts and incidents cleared.")
		}
		return nil
	},
}

func init() {
	resetCmd.Flags().String("child", "local-child", "Child ID")
	resetCmd.Flags().Bool("all", false, "Also clear parent notifications, alerts and incidents")
}
