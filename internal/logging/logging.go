package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init installs the default slog logger for a service. format is "json"
// (default) or "text"; level is debug, info (default), warn or error.
// Every record carries a service attribute.
func Init(service, format, level string) *slog.Logger {
	format = strings.ToLower(strings.TrimSpace(format))

	var lvl slog.Level
	levelErr := lvl.UnmarshalText([]byte(strings.TrimSpace(level)))
	if level == "" || levelErr != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)

	if format != "" && format != "json" && format != "text" {
		logger.Warn("unknown log format, defaulting to json", "format", format)
	}
	if level != "" && levelErr != nil {
		logger.Warn("unknown log level, defaulting to info", "level", level)
	}
	return logger
}
