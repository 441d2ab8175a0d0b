package observability

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

type LogOptions struct {
	Env string
	// File, when set, adds a size-rotated JSON sink next to stdout.
	File      string
	FileMaxMB int
}

func NewLogger(opts LogOptions) *slog.Logger {
	level := slog.LevelInfo

	if opts.Env == "dev" {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stdout
	if opts.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    max(1, opts.FileMaxMB),
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(NewTraceHandler(handler))
}
