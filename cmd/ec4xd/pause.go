package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

type pauseCommand struct {
	Args struct {
		Game string `positional-arg-name:"game" description:"Game slug" required:"true"`
	} `positional-args:"yes"`
}

// Execute sets a game's phase to paused in its database. The daemon reads
// games.phase into GameState.Phase when it starts and only resolves
// active games; a daemon that is already running keeps the phase it read
// at startup, so the pause takes effect for it at its next start.
func (c *pauseCommand) Execute(args []string) error {
	ctx := context.Background()
	db, slug, err := openGame(ctx, c.Args.Game)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: pause: %v\n", err)
		os.Exit(exitNotFound)
	}
	defer db.Close()

	if err := db.SetPhase(ctx, slug, "paused"); err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: pause: %v\n", err)
		os.Exit(exitValidationFailure)
	}
	if err := publishStatus(ctx, db, slug, "paused"); err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: pause: %v\n", err)
		os.Exit(exitTransportFailure)
	}

	fmt.Printf("game %q paused\n", slug)
	os.Exit(exitOK)
	return nil
}

func addPauseCommand(parser *flags.Parser) {
	_, err := parser.AddCommand("pause",
		"Pause a game",
		"Marks a game Paused so the daemon stops scheduling turn resolution for it.",
		&pauseCommand{})
	if err != nil {
		panic(err)
	}
}

type resumeCommand struct {
	Args struct {
		Game string `positional-arg-name:"game" description:"Game slug" required:"true"`
	} `positional-args:"yes"`
}

// Execute sets a game's phase back to active and resets its
// consecutive-failure counter, so a game paused after three failed turns
// starts counting again from zero.
func (c *resumeCommand) Execute(args []string) error {
	ctx := context.Background()
	db, slug, err := openGame(ctx, c.Args.Game)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: resume: %v\n", err)
		os.Exit(exitNotFound)
	}
	defer db.Close()

	if err := db.SetPhase(ctx, slug, "active"); err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: resume: %v\n", err)
		os.Exit(exitValidationFailure)
	}
	if err := db.ResetFailedTurns(ctx, slug); err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: resume: %v\n", err)
		os.Exit(exitValidationFailure)
	}
	if err := publishStatus(ctx, db, slug, "active"); err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: resume: %v\n", err)
		os.Exit(exitTransportFailure)
	}

	fmt.Printf("game %q resumed\n", slug)
	os.Exit(exitOK)
	return nil
}

func addResumeCommand(parser *flags.Parser) {
	_, err := parser.AddCommand("resume",
		"Resume a paused game",
		"Marks a game active again and clears its consecutive-failure counter.",
		&resumeCommand{})
	if err != nil {
		panic(err)
	}
}
