package core

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/Oudwins/wocs/internals/assert"
)

const LogFileName = "wocs.log"

// InitLogger logs to stdout and <dataDir>/wocs.log. Colours are only used
// when stdout is a terminal.
func InitLogger(dataDir, level string) (*slog.Logger, *os.File) {
	logPath := filepath.Join(dataDir, LogFileName)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		assert.AssertNil(err, "[CORE] Failed to initialize log directory")
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	assert.AssertNil(err, "[CORE] Failed to open log file")

	logger := NewLogger(io.MultiWriter(os.Stdout, logFile), level, !isatty.IsTerminal(os.Stdout.Fd()))
	slog.SetDefault(logger)
	return logger, logFile
}

func NewLogger(w io.Writer, level string, noColor bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:     ParseLevel(level),
		AddSource: true,
		NoColor:   noColor,
	}))
}

// ParseLevel falls back to info for anything it does not recognise.
func ParseLevel(level string) slog.Level {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return parsed
}
