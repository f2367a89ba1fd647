package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrettyHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	log.Info("hidden")
	log.Warn("shown", "bucket", "login")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "shown")
	require.Contains(t, out, "bucket")
	require.Contains(t, out, "login")
}

func TestPrettyHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil)).WithGroup("auth").With("user", "sam")

	log.Info("resolved", slog.Group("session", "role", "seller"))

	out := buf.String()
	require.Contains(t, out, "auth.user")
	require.Contains(t, out, "auth.session.role")
}

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	var console bytes.Buffer

	log, closer := New(&console, Options{Level: "debug", File: path})
	log.Debug("signature rejected", "reason", "stale timestamp")
	require.NoError(t, closer.Close())

	require.Contains(t, console.String(), "signature rejected")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	require.Equal(t, "signature rejected", record["msg"])
	require.Equal(t, "stale timestamp", record["reason"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
