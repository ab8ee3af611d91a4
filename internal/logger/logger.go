package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Brownie44l1/food-api/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger from the app config.
// Local and dev environments get a human readable console writer, everything
// else logs JSON.
func Init(cfg *config.Config) {
	InitWithWriter(cfg, os.Stdout)
}

func InitWithWriter(cfg *config.Config, out io.Writer) {
	zerolog.SetGlobalLevel(parseLevel(cfg.AppLogLevel))

	var w io.Writer = out
	switch strings.ToLower(cfg.AppEnv) {
	case "local", "dev", "development":
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "02-01-2006 15:04:05.000",
			FormatLevel: func(i interface{}) string {
				return strings.ToUpper(fmt.Sprintf("%-6s", i))
			},
		}
	}

	log.Logger = zerolog.New(w).With().
		Timestamp().
		Str("applicationName", cfg.AppName).
		Logger()
	log.Info().Str("level", zerolog.GlobalLevel().String()).Msg("logger initialized")
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO", "":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	case "DISABLED":
		return zerolog.Disabled
	default:
		log.Warn().Str("level", level).Msg("unknown log level, defaulting to INFO")
		return zerolog.InfoLevel
	}
}
