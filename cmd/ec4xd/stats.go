package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/jessevdk/go-flags"

	"github.com/greenm01/ec4x/internal/entity"
)

type statsCommand struct {
	Events int `long:"events" description:"Number of most recent events to show" default:"10"`
	Args   struct {
		Game string `positional-arg-name:"game" description:"Game slug" required:"true"`
	} `positional-args:"yes"`
}

// Execute prints a game's turn/phase/config_hash, one line per house
// (treasury, prestige, colony count, eliminated flag), and the most
// recent events from the most recently resolved turn's game_events log.
func (c *statsCommand) Execute(args []string) error {
	ctx := context.Background()
	db, slug, err := openGame(ctx, c.Args.Game)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: stats: %v\n", err)
		os.Exit(exitNotFound)
	}
	defer db.Close()

	row, err := db.LoadGame(ctx, slug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: stats: %v\n", err)
		os.Exit(exitNotFound)
	}

	fmt.Printf("game %q (slug %s)\n", row.Name, row.Slug)
	fmt.Printf("  turn:        %d\n", row.Turn)
	fmt.Printf("  phase:       %s\n", row.Phase)
	fmt.Printf("  config_hash: %s\n", row.ConfigHash)
	fmt.Printf("  failed_turns: %d\n", row.FailedTurns)

	w, err := entity.DecodeWorld(row.StateBlob)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: stats: decode world: %v\n", err)
		os.Exit(exitValidationFailure)
	}

	type houseLine struct {
		id     entity.ID
		name   string
		colonies int
		h      entity.House
	}
	colonyCounts := make(map[entity.ID]int)
	for _, col := range w.Colonies.Iterate(nil) {
		colonyCounts[col.Owner]++
	}
	var lines []houseLine
	for id, h := range w.Houses.Iterate(nil) {
		lines = append(lines, houseLine{id: id, name: h.Name, colonies: colonyCounts[id], h: h})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].id < lines[j].id })

	fmt.Println("  houses:")
	for _, l := range lines {
		elim := ""
		if l.h.Eliminated {
			elim = " [eliminated]"
		}
		fmt.Printf("    %s %-16s treasury=%-8d prestige=%-8d colonies=%d%s\n",
			l.id, l.name, l.h.Treasury, l.h.Prestige, l.colonies, elim)
	}

	lastTurn := row.Turn - 1
	evs, err := db.Events(ctx, slug, lastTurn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: stats: events: %v\n", err)
		os.Exit(exitValidationFailure)
	}
	if len(evs) > c.Events {
		evs = evs[len(evs)-c.Events:]
	}
	fmt.Printf("  recent events (turn %d):\n", lastTurn)
	for _, e := range evs {
		fmt.Printf("    %s: %s\n", e.Kind, e.Description)
	}

	os.Exit(exitOK)
	return nil
}

func addStatsCommand(parser *flags.Parser) {
	_, err := parser.AddCommand("stats",
		"Show a game's current state",
		"Prints turn, phase, per-house summary, and the most recent events.",
		&statsCommand{})
	if err != nil {
		panic(err)
	}
}
