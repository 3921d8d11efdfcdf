package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: LevelWarn})

	l.Info("dropped")
	l.Warn("kept", SkillID("hand-hygiene"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "kept", lines[0]["message"])
	fields := lines[0]["fields"].(map[string]any)
	assert.Equal(t, "hand-hygiene", fields["skill_id"])
}

func TestLogger_WithSharesOutput(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Options{Output: &buf, Level: LevelDebug})
	child := parent.With(Component("awarder"))

	child.Debug("child entry", Source("local"))
	parent.Debug("parent entry")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	childFields := lines[0]["fields"].(map[string]any)
	assert.Equal(t, "awarder", childFields["component"])
	assert.Equal(t, "local", childFields["source"])
	assert.Nil(t, lines[1]["fields"])
}

func TestLogger_SlogBridge(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: LevelInfo})
	s := l.Slog().With("component", "reconcile")

	s.Debug("below threshold")
	s.Error("award failed", "skill_id", "iv-insertion", "error", errors.New("boom"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "ERROR", lines[0]["level"])
	fields := lines[0]["fields"].(map[string]any)
	assert.Equal(t, "reconcile", fields["component"])
	assert.Equal(t, "iv-insertion", fields["skill_id"])
	assert.Equal(t, "boom", fields["error"])
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: LevelInfo, Format: FormatText})

	l.Info("catalog loaded", Int("skills", 23))

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "catalog loaded")
	assert.Contains(t, out, "skills=23")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}
