package appconfig

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoadDotEnv loads .env if it exists.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
}

// ConfigureLogging sets up the global zerolog logger.
func ConfigureLogging(c LogConfig) {
	if c.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		log.Warn().Str("level", c.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
