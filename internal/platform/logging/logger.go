package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/codegouvfr/sill-web/internal/platform/correlation"
)

// InitLogger builds the process logger and installs it as slog's default.
// level is one of debug, info, warn, error (info otherwise); format is
// "json" or "text".
func InitLogger(level, format string) *slog.Logger {
	return initLogger(os.Stdout, level, format)
}

func initLogger(w io.Writer, level, format string) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(correlation.NewHandler(handler)).With("service", "sill-web")
	slog.SetDefault(logger)
	return logger
}
