package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/greenm01/ec4x/internal/codec"
	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/persistence"
	"github.com/greenm01/ec4x/internal/rules"
	"github.com/greenm01/ec4x/internal/transport/local"
)

type newCommand struct {
	Name    string `long:"name" description:"Display name for the game" required:"true"`
	Houses  string `long:"houses" description:"Comma-separated house names" required:"true"`
	Args    struct {
		Scenario string `positional-arg-name:"scenario" description:"Scenario slug, also used as the game id" required:"true"`
	} `positional-args:"yes"`
}

func (c *newCommand) Execute(args []string) error {
	slug, err := persistence.NormalizeSlug(c.Args.Scenario)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: new: %v\n", err)
		os.Exit(exitValidationFailure)
	}
	houseNames := strings.Split(c.Houses, ",")
	if len(houseNames) == 0 {
		fmt.Fprintln(os.Stderr, "ec4xd: new: --houses must name at least one house")
		os.Exit(exitValidationFailure)
	}

	ctx := context.Background()
	dir := gameDir(slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: new: %v\n", err)
		os.Exit(exitValidationFailure)
	}

	w := entity.NewWorld()
	for _, name := range houseNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		w.Houses.Insert(entity.House{
			Name:            name,
			Treasury:        1000,
			TechLevels:      make(map[entity.TechField]int),
			ResearchPoints:  make(map[entity.TechField]float64),
			Relations:       make(map[entity.ID]entity.Relation),
			IntelDB:         make(map[entity.IntelKey]entity.IntelEntry),
		})
	}
	w.RebuildIndices()

	rls, err := rules.Load(rules.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: new: %v\n", err)
		os.Exit(exitValidationFailure)
	}

	blob, err := entity.EncodeWorld(w)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: new: %v\n", err)
		os.Exit(exitValidationFailure)
	}

	db, err := persistence.Open(ctx, dbPath(slug))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: new: %v\n", err)
		os.Exit(exitValidationFailure)
	}
	defer db.Close()

	now := time.Now()
	row := persistence.GameRow{
		ID:          slug,
		Name:        c.Name,
		Slug:        slug,
		Turn:        1,
		Phase:       "active",
		StateBlob:   blob,
		ConfigHash:  rls.ConfigHash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.CreateGame(ctx, row); err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: new: %v\n", err)
		os.Exit(exitValidationFailure)
	}

	tr := local.New(db, dir)
	summary := struct {
		GameID string `bson:"gameId"`
		Name   string `bson:"name"`
		Houses []string `bson:"houses"`
	}{GameID: slug, Name: c.Name, Houses: houseNames}
	payload, err := marshalSummary(summary)
	if err == nil {
		_ = tr.PublishSummary(ctx, slug, payload)
	}

	fmt.Printf("created game %q (slug %s) with %d houses\n", c.Name, slug, w.Houses.Len())
	os.Exit(exitOK)
	return nil
}

func addNewCommand(parser *flags.Parser) {
	_, err := parser.AddCommand("new",
		"Create a new game",
		"Creates a game directory and database, registers the starting houses, and emits a public game-definition event.",
		&newCommand{})
	if err != nil {
		panic(err)
	}
}
