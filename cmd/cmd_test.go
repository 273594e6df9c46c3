package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/studybuddy/internal/safety"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestCheckInput(t *testing.T) {
	out := execute(t, "check", "input", "--age", "8", "my", "phone", "number", "is", "555-123-4567")

	var got struct {
		Result safety.Result    `json:"result"`
		PII    safety.PIIResult `json:"pii"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, safety.SeverityHigh, got.Result.Severity)
	assert.Contains(t, got.Result.Flags, safety.FlagPII)
	assert.True(t, got.PII.Found)
	assert.NotContains(t, got.PII.SanitizedText, "555-123-4567")
}

func TestCheckOutput(t *testing.T) {
	out := execute(t, "check", "output", "--age", "8", "Read", "more", "at", "https://example.com", "today!")

	var got struct {
		Result    safety.Result `json:"result"`
		Sanitized string        `json:"sanitized"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.False(t, got.Result.Passed)
	assert.NotContains(t, got.Sanitized, "https://example.com")
}

func TestResetAndParentCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "studybuddy.db")

	out := execute(t, "reset", "--db", db, "--child", "kid-9", "--all")
	assert.Contains(t, out, "Conversation history for kid-9 cleared.")
	assert.Contains(t, out, "Parent notifications, alerts and incidents cleared.")

	out = execute(t, "parent", "notifications", "--db", db, "--child", "kid-9")
	assert.Contains(t, out, "No notifications.")

	out = execute(t, "parent", "incidents", "--db", db, "--child", "kid-9")
	assert.Contains(t, out, "No safety incidents.")
}

func TestVersion(t *testing.T) {
	out := execute(t, "version")
	assert.Contains(t, out, "studybuddy")
	assert.Contains(t, out, "go:")
}

func TestBuildVersion(t *testing.T) {
	info := &debug.BuildInfo{
		Main:     debug.Module{Path: "github.com/abhisek/studybuddy", Version: "v1.2.0"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc123"}},
	}
	assert.Equal(t, "v1.2.0", buildVersion(info, true))
	assert.Equal(t, "(devel)", buildVersion(nil, false))
	assert.Equal(t, "abc123", buildSetting(info, "vcs.revision"))
	assert.Empty(t, buildSetting(info, "vcs.modified"))
}
