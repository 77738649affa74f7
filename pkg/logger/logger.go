package logger

import (
	"io"
	"log/slog"
	"os"
)

var Log = slog.Default()

// Setup initializes the global logger based on the environment.
// "production" gets the JSON handler at info level, everything else the text
// handler at debug level.
func Setup(env string) {
	SetupWriter(env, os.Stdout)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(env string, w io.Writer) {
	var handler slog.Handler

	if env == "production" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	Log = slog.New(handler)
	slog.SetDefault(Log)
}
