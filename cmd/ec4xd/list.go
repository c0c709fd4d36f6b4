package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jessevdk/go-flags"
)

type listCommand struct{}

// Execute prints one line per game directory under data/games: slug,
// display name, current turn, and phase.
func (c *listCommand) Execute(args []string) error {
	ctx := context.Background()
	slugs, err := listGameSlugs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: list: %v\n", err)
		os.Exit(exitValidationFailure)
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tNAME\tTURN\tPHASE")
	for _, slug := range slugs {
		db, norm, err := openGame(ctx, slug)
		if err != nil {
			fmt.Fprintf(tw, "%s\t<unreadable>\t-\t-\n", slug)
			continue
		}
		row, err := db.LoadGame(ctx, norm)
		db.Close()
		if err != nil {
			fmt.Fprintf(tw, "%s\t<no game row>\t-\t-\n", slug)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", row.Slug, row.Name, row.Turn, row.Phase)
	}
	tw.Flush()
	os.Exit(exitOK)
	return nil
}

func addListCommand(parser *flags.Parser) {
	_, err := parser.AddCommand("list",
		"List known games",
		"Prints slug, name, current turn, and phase for every game directory.",
		&listCommand{})
	if err != nil {
		panic(err)
	}
}
