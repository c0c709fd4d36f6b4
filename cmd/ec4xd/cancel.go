package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"

	"github.com/greenm01/ec4x/internal/persistence"
)

type cancelCommand struct {
	Args struct {
		Game string `positional-arg-name:"game" description:"Game slug" required:"true"`
	} `positional-args:"yes"`
}

// Execute archives a game directory under data/archive/<slug> and emits a
// status "cancelled" event. Spec section 9 leaves the exact ordering of
// the filesystem move versus the event publish underspecified beyond
// "the external status event is published after the filesystem operation
// succeeds" — so Execute does the rename first, and only then opens the
// (now-archived) database to publish, never the reverse.
func (c *cancelCommand) Execute(args []string) error {
	ctx := context.Background()
	slug, err := persistence.NormalizeSlug(c.Args.Game)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: cancel: %v\n", err)
		os.Exit(exitValidationFailure)
	}
	src := gameDir(slug)
	if _, err := os.Stat(src); err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: cancel: game %q not found: %v\n", slug, err)
		os.Exit(exitNotFound)
	}
	dst := archiveDir(slug)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: cancel: %v\n", err)
		os.Exit(exitValidationFailure)
	}
	if err := os.Rename(src, dst); err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: cancel: %v\n", err)
		os.Exit(exitValidationFailure)
	}

	db, err := persistence.Open(ctx, archiveDBPath(slug))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: cancel: archived but failed to open database to publish status: %v\n", err)
		os.Exit(exitTransportFailure)
	}
	defer db.Close()
	if err := db.SetPhase(ctx, slug, "ended"); err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: cancel: %v\n", err)
		os.Exit(exitTransportFailure)
	}
	if err := publishStatusAt(ctx, db, archiveDir(slug), slug, "cancelled"); err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: cancel: %v\n", err)
		os.Exit(exitTransportFailure)
	}

	fmt.Printf("game %q cancelled (archived to %s)\n", slug, dst)
	os.Exit(exitOK)
	return nil
}

func addCancelCommand(parser *flags.Parser) {
	_, err := parser.AddCommand("cancel",
		"Archive a game",
		"Moves a game directory to data/archive/<slug> and emits a cancelled status event.",
		&cancelCommand{})
	if err != nil {
		panic(err)
	}
}
