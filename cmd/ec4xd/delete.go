package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/greenm01/ec4x/internal/persistence"
)

type deleteCommand struct {
	Args struct {
		Game string `positional-arg-name:"game" description:"Game slug" required:"true"`
	} `positional-args:"yes"`
}

// Execute removes a game's directory outright (as opposed to `cancel`,
// which archives it) and then records a status "removed" event. No
// transport or database is opened: once the removal succeeds it recreates
// the empty directory and writes the encoded status document straight to
// summary.bin there (the file name transport/local's PublishSummary uses),
// leaving that one file behind as the record of removal, matching spec
// section 9's "status event is published after the filesystem operation
// succeeds".
func (c *deleteCommand) Execute(args []string) error {
	ctx := context.Background()
	slug, err := persistence.NormalizeSlug(c.Args.Game)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: delete: %v\n", err)
		os.Exit(exitValidationFailure)
	}
	dir := gameDir(slug)
	if _, err := os.Stat(dir); err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: delete: game %q not found: %v\n", slug, err)
		os.Exit(exitNotFound)
	}

	if err := os.RemoveAll(dir); err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: delete: %v\n", err)
		os.Exit(exitValidationFailure)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: delete: removed but failed to record status: %v\n", err)
		os.Exit(exitTransportFailure)
	}
	payload, err := marshalSummary(struct {
		GameID string `bson:"gameId"`
		Status string `bson:"status"`
	}{GameID: slug, Status: "removed"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: delete: %v\n", err)
		os.Exit(exitTransportFailure)
	}
	if err := os.WriteFile(dir+"/summary.bin", payload, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: delete: %v\n", err)
		os.Exit(exitTransportFailure)
	}

	fmt.Printf("game %q removed\n", slug)
	os.Exit(exitOK)
	return nil
}

func addDeleteCommand(parser *flags.Parser) {
	_, err := parser.AddCommand("delete",
		"Remove a game",
		"Deletes a game directory outright and emits a removed status event.",
		&deleteCommand{})
	if err != nil {
		panic(err)
	}
}
