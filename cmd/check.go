package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/studybuddy/internal/safety"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the safety detectors on a piece of text",
}

var checkInputCmd = &cobra.Command{
	Use:   "input <text>",
	Short: "Check a child's message as the gateway would before the model",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, age, err := checkSetup(cmd)
		if err != nil {
			return err
		}
		text := strings.Join(args, " ")
		return printJSON(cmd, struct {
			Result safety.Result    `json:"result"`
			PII    safety.PIIResult `json:"pii"`
		}{
			Result: d.ValidateInput(text, age),
			PII:    d.DetectPII(text),
		})
	},
}

var checkOutputCmd = &cobra.Command{
	Use:   "output <text>",
	Short: "Check a model reply as the gateway would before showing it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, age, err := checkSetup(cmd)
		if err != nil {
			return err
		}
		text := strings.Join(args, " ")
		ok, stats := d.CheckComplexity(text, age)
		return printJSON(cmd, struct {
			Result       safety.Result          `json:"result"`
			Sanitized    string                 `json:"sanitized"`
			ComplexityOK bool                   `json:"complexityOk"`
			Complexity   safety.ComplexityStats `json:"complexity"`
			Educational  bool                   `json:"educational"`
		}{
			Result:       d.ValidateOutput(text, age),
			Sanitized:    d.SanitizeOutput(text, age),
			ComplexityOK: ok,
			Complexity:   stats,
			Educational:  d.HasEducationalValue(text),
		})
	},
}

func init() {
	checkCmd.PersistentFlags().Int("age", 8, "Child's age")
	checkCmd.PersistentFlags().String("rules", "", "Safety rules file (overrides safety.rules_file)")
	checkCmd.AddCommand(checkInputCmd)
	checkCmd.AddCommand(checkOutputCmd)
}

func checkSetup(cmd *cobra.Command) (*safety.Detector, int, error) {
	age, _ := cmd.Flags().GetInt("age")
	path, _ := cmd.Flags().GetString("rules")
	if path == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, 0, err
		}
		path = cfg.Safety.RulesFile
	}
	d, err := newDetector(path)
	return d, age, err
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
