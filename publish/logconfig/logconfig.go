package logconfig

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const timestampFmt = "2006-01-02T15:04:05.000"

// Bootstrap points the global logger at w with console formatting. Logs never
// go to stdout, which carries the command's result.
func Bootstrap(w io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: timestampFmt,
	}).With().Timestamp().Logger()
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
}

// Configure sets the global level.
func Configure(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "parse log level %q", level)
	}
	zerolog.SetGlobalLevel(lvl)
	log.Debug().Msgf("Log level: %s", lvl)
	return nil
}
