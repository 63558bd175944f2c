package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects the global logger to a buffer for the test duration.
func captureOutput(t *testing.T, cfg *Config) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	require.NoError(t, Configure(cfg))
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(slog.LevelInfo)
	})
	return &buf
}

func TestConfigure_JSONFormat(t *testing.T) {
	buf := captureOutput(t, &Config{
		Level:  "info",
		Format: FormatJSON,
		CommonFields: map[string]string{
			"service": "voice-rag",
		},
	})

	Info("channel connected", "url", "ws://example/listen")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "channel connected", record["msg"])
	assert.Equal(t, "voice-rag", record["service"])
	assert.Equal(t, "ws://example/listen", record["url"])
}

func TestConfigure_LevelFiltering(t *testing.T) {
	buf := captureOutput(t, &Config{Level: "warn", Format: FormatText})

	Debug("not emitted")
	Info("not emitted either")
	Warn("emitted")

	out := buf.String()
	assert.NotContains(t, out, "not emitted")
	assert.Contains(t, out, "emitted")
}

func TestContextHandler_ExtractsSessionFields(t *testing.T) {
	buf := captureOutput(t, &Config{Level: "info", Format: FormatJSON})

	ctx := WithSessionID(context.Background(), "sess-42")
	ctx = WithQueryID(ctx, "q-7")
	ctx = WithComponent(ctx, "detection")

	InfoContext(ctx, "wake word detected")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "sess-42", record["session_id"])
	assert.Equal(t, "q-7", record["query_id"])
	assert.Equal(t, "detection", record["component"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("unknown"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestRedactSensitiveData(t *testing.T) {
	in := "authorization: Bearer abc123def456 for request"
	out := RedactSensitiveData(in)
	assert.NotContains(t, out, "abc123def456")
	assert.Contains(t, out, "Bearer [REDACTED]")

	key := "sk-" + strings.Repeat("a", 40)
	out = RedactSensitiveData("key=" + key)
	assert.NotContains(t, out, key)
	assert.Contains(t, out, "sk-a...[REDACTED]")
}

func TestStateTransition_Logs(t *testing.T) {
	buf := captureOutput(t, &Config{Level: "info", Format: FormatJSON})

	StateTransition("LISTENING", "RECORDING", "wake_word", "source", "channel")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "LISTENING", record["from"])
	assert.Equal(t, "RECORDING", record["to"])
	assert.Equal(t, "wake_word", record["cause"])
	assert.Equal(t, "channel", record["source"])
}
