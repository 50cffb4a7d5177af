package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test.log")

	t.Run("Initialize logger with valid path", func(t *testing.T) {
		err := Init(logPath, "debug")
		assert.NoError(t, err)

		Info("info message", zap.String("user_id", "u1"))
		Debug("debug message")
		Warn("warn message")
		Error("error message")

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)

		lines := splitLines(string(content))
		require.Len(t, lines, 4)

		logLevels := []string{"info", "debug", "warn", "error"}
		messages := []string{"info message", "debug message", "warn message", "error message"}

		for i, line := range lines {
			var entry map[string]interface{}
			err := json.Unmarshal([]byte(line), &entry)
			require.NoError(t, err)

			assert.Equal(t, logLevels[i], entry["level"])
			assert.Equal(t, messages[i], entry["msg"])
			assert.Contains(t, entry, "timestamp")
		}
		assert.Contains(t, lines[0], `"user_id":"u1"`)
	})

	t.Run("Initialize logger with invalid path", func(t *testing.T) {
		// A regular file cannot act as the log directory
		blocker := filepath.Join(tmpDir, "blocker")
		require.NoError(t, os.WriteFile(blocker, nil, 0600))
		err := Init(filepath.Join(blocker, "dir", "test.log"), "info")
		assert.Error(t, err)
	})

	t.Run("Log without initialization", func(t *testing.T) {
		log = nil

		// These should not panic
		Info("test message")
		Debug("test message")
		Warn("test message")
		Error("test message")
	})
}

func TestLoggerLevelFiltering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")
	require.NoError(t, Init(logPath, "warn"))
	defer func() { log = nil }()

	Debug("dropped")
	Info("dropped")
	Warn("kept")

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := splitLines(string(content))
	require.Len(t, lines, 1)
	assert.True(t, strings.Contains(lines[0], "kept"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("info"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
}

func TestLoggerWithoutInit(t *testing.T) {
	log = nil

	// These should not panic
	Info("test info")
	Error("test error")
	Debug("test debug")
	Warn("test warn")
	Fatal("test fatal") // nil logger, nothing to exit
	err := Sync()
	assert.NoError(t, err)
}

func TestLoggerFatal(t *testing.T) {
	// Enable test mode to prevent os.Exit
	SetTestMode(true)
	defer SetTestMode(false)

	logPath := filepath.Join(t.TempDir(), "test-fatal.log")
	err := Init(logPath, "info")
	require.NoError(t, err)

	Fatal("This is a fatal message")

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)

	require.Contains(t, string(content), "This is a fatal message")
	require.Contains(t, string(content), "level\":\"error\"")
}

func TestLoggerSync(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	err := Init(logPath, "info")
	require.NoError(t, err)

	Info("info message")
	Error("error message")

	err = Sync()
	assert.NoError(t, err)

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotEmpty(t, content)

	// Test Sync with uninitialized logger
	log = nil
	err = Sync()
	assert.NoError(t, err)
}

// Helper function to split log content into lines
func splitLines(content string) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestSetLoggerAndLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := SetLogger(zap.New(core))
	defer SetLogger(prev)

	Log(zapcore.WarnLevel, "captured", zap.String("key", "value"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "value", entries[0].ContextMap()["key"])

	SetLogger(nil)
	Log(zapcore.ErrorLevel, "dropped")
	assert.Len(t, logs.All(), 1)
}
