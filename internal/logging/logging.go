// Package logging configures the process-wide zerolog logger: a
// colorized console writer when stderr is a terminal, plain JSON
// lines otherwise (log file redirection, systemd capture, etc.), with
// an optional debug level bump.
package logging

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New builds the root logger for app, writing to dest (os.Stderr in
// production, an *os.File when -r redirects to a log file). debug
// lowers the level to zerolog.DebugLevel; otherwise InfoLevel.
func New(app string, dest *os.File, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	var w io.Writer = dest
	if isatty.IsTerminal(dest.Fd()) {
		w = zerolog.ConsoleWriter{Out: colorable.NewColorable(dest), TimeFormat: "15:04:05"}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Str("app", app).Logger()
}
