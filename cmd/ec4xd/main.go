// Command ec4xd is the EC4X moderator daemon: it creates, resolves, and
// serves asynchronous turn-based games per spec section 6's CLI surface
// (`new`, `start`, `pause`, `resume`, `cancel`, `delete`, `list`, `stats`).
// Exit codes follow spec section 6 exactly: 0 success, 2 validation
// failure, 3 not found, 4 transport failure.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
)

var version = "dev"

// Exit codes from spec section 6.
const (
	exitOK               = 0
	exitValidationFailure = 2
	exitNotFound          = 3
	exitTransportFailure  = 4
)

type globalOptions struct {
	Version  func() `short:"V" long:"version" description:"Print version and exit"`
	DataDir  string `long:"data-dir" description:"Root directory for game state" default:"data"`
	LogLevel string `long:"log-level" description:"debug, info, warn, or error" default:"info"`
}

var globals globalOptions

func newLogger() zerolog.Logger {
	lvl, err := zerolog.ParseLevel(globals.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(lvl).With().Timestamp().Logger()
}

func main() {
	globals.Version = func() {
		fmt.Printf("ec4xd %s\n", version)
		os.Exit(exitOK)
	}

	parser := flags.NewParser(&globals, flags.Default)
	parser.Name = "ec4xd"
	parser.LongDescription = "Moderator daemon for asynchronous, server-authoritative EC4X games."

	addNewCommand(parser)
	addStartCommand(parser)
	addPauseCommand(parser)
	addResumeCommand(parser)
	addCancelCommand(parser)
	addDeleteCommand(parser)
	addListCommand(parser)
	addStatsCommand(parser)

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(exitOK)
			}
			if flagsErr.Type == flags.ErrCommandRequired {
				parser.WriteHelp(os.Stderr)
				os.Exit(exitValidationFailure)
			}
		}
		os.Exit(exitValidationFailure)
	}
}
