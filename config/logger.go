package config

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// InitLogger overrides the zerolog global logger. It reads the log section of
// GlobalConfig when available and falls back to info level otherwise.
func InitLogger() {
	cfg := LogConfig{Level: "info"}
	if GlobalConfig != nil {
		cfg = GlobalConfig.Log
	}
	log.Logger = NewLogger("ibc-tracker", cfg)
}

func NewLogger(name string, cfg LogConfig) zerolog.Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	level := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(cfg.Level); err == nil && lvl != zerolog.NoLevel {
		level = lvl
	}
	zerolog.SetGlobalLevel(level)

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", name).Logger()
	logger = logger.With().Caller().Logger()
	if cfg.Pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}
