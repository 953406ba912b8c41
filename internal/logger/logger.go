package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var L = log.Logger

// Init configures the package logger. An empty path logs to stdout.
func Init(path, level string) error {
	var w io.Writer = os.Stdout
	if path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		w = file
	}
	L = log.Output(zerolog.ConsoleWriter{Out: w}).Level(parseLevel(level))
	return nil
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// With returns a logger scoped to a component name.
func With(component string) zerolog.Logger {
	return L.With().Str("component", component).Logger()
}

func Info(v ...interface{})             { L.Info().Msgf("%v", v...) }
func Warn(v ...interface{})             { L.Warn().Msgf("%v", v...) }
func Error(v ...interface{})            { L.Error().Msgf("%v", v...) }
func Infof(f string, v ...interface{})  { L.Info().Msgf(f, v...) }
func Warnf(f string, v ...interface{})  { L.Warn().Msgf(f, v...) }
func Errorf(f string, v ...interface{}) { L.Error().Msgf(f, v...) }
