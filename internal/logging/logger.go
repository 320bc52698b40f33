package logging

import (
	"io"
	"os"
	"time"

	"github.com/jrsteele09/go-coworking-session/internal/config"
	"github.com/rs/zerolog"
)

// New builds the application logger. DEV gets a human readable console
// writer, every other environment logs JSON lines.
func New(cfg config.EnvConfig, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if cfg.GetEnv() == "DEV" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	level, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(level).With().
		Timestamp().
		Str("app", cfg.GetAppName()).
		Logger()
}
