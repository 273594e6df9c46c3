package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set via -ldflags at build time.
var version = "(devel)"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and build details",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		info, ok := debug.ReadBuildInfo()
		fmt.Fprintln(out, "studybuddy", buildVersion(info, ok))
		if !ok {
			return
		}
		fmt.Fprintln(out, "  module:", info.Main.Path)
		fmt.Fprintln(out, "  go:    ", info.GoVersion)
		if rev := buildSetting(info, "vcs.revision"); rev != "" {
			if buildSetting(info, "vcs.modified") == "true" {
				rev += " (dirty)"
			}
			fmt.Fprintln(out, "  commit:", rev)
		}
	},
}

// buildVersion prefers the -ldflags version, then the module version
// recorded by `go install`.
func buildVersion(info *debug.BuildInfo, ok bool) string {
	if version != "(devel)" || !ok {
		return version
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	return version
}

func buildSetting(info *debug.BuildInfo, key string) string {
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}
