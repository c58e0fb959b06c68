package main

import (
	"log/slog"
	"os"
	"strings"
)

// newLogger builds the process logger. The flag wins over the config file;
// both default to info.
func newLogger(flagLevel, configLevel string) *slog.Logger {
	level := configLevel
	if flagLevel != "" {
		level = flagLevel
	}
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
