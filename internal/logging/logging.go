// Package logging builds the zerolog logger shared by the CLI and sandbox.
package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger construction
type Options struct {
	Verbose bool
	JSON    bool
	NoColor bool
}

// New returns a logger writing to w. Without Verbose only warnings and above are written.
func New(w io.Writer, opts Options) zerolog.Logger {
	level := zerolog.WarnLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	out := w
	if !opts.JSON {
		out = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    opts.NoColor,
			TimeFormat: time.Kitchen,
		}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
