package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/greenm01/ec4x/internal/daemon"
	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/rules"
	"github.com/greenm01/ec4x/internal/transport/local"
)

type startCommand struct {
	Tick             time.Duration `long:"tick" description:"Daemon loop tick interval" default:"5s"`
	DeadlineInterval time.Duration `long:"deadline" description:"Turn deadline from game start, checked each tick" default:"24h"`
	MaxConcurrent    int64         `long:"max-concurrent-resolutions" description:"Max games resolving a turn at once" default:"4"`
}

// Execute runs the daemon loop (spec section 4.8) until interrupted. It
// loads every currently-known game directory under data/games, registers
// each with the loop, then blocks driving Update against real I/O until
// SIGINT/SIGTERM, at which point it drains in-flight resolutions (spec
// section 5's shutdown guarantee) before returning.
func (c *startCommand) Execute(args []string) error {
	log := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := daemon.NewLoop(log, c.MaxConcurrent)
	loop.Scan = func(ctx context.Context) ([]daemon.GameDiscovered, error) {
		return scanGameDirs(filepath.Join(globals.DataDir, "games"))
	}

	state := daemon.NewState()
	slugs, err := listGameSlugs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ec4xd: start: %v\n", err)
		os.Exit(exitValidationFailure)
	}
	if len(slugs) == 0 {
		log.Warn().Msg("ec4xd: start: no games found under data directory; daemon will hot-reload new ones")
	}

	for _, slug := range slugs {
		db, _, err := openGame(ctx, slug)
		if err != nil {
			log.Error().Err(err).Str("game", slug).Msg("ec4xd: start: skipping game, cannot open database")
			continue
		}
		row, err := db.LoadGame(ctx, slug)
		if err != nil {
			log.Error().Err(err).Str("game", slug).Msg("ec4xd: start: skipping game, cannot load row")
			db.Close()
			continue
		}
		rls, err := rules.Load(rules.Default())
		if err != nil {
			log.Error().Err(err).Str("game", slug).Msg("ec4xd: start: skipping game, cannot build rules")
			db.Close()
			continue
		}
		dir := gameDir(slug)
		gs := &daemon.GameState{
			ID:              slug,
			Slug:            slug,
			Dir:             dir,
			Deadline:        time.Now().Add(c.DeadlineInterval),
			Phase:           phaseFromRow(row.Phase),
			Rules:           rls,
			DB:              db,
			Transport:       local.New(db, dir),
			PendingCommands: make(map[entity.ID][]byte),
		}
		loop.RegisterGame(gs)
		state.Games[slug] = gs
		log.Info().Str("game", slug).Int("turn", row.Turn).Msg("ec4xd: start: registered game")
	}

	log.Info().Dur("tick", c.Tick).Msg("ec4xd: start: entering event loop")
	loop.Run(ctx, state, c.Tick)
	log.Info().Msg("ec4xd: start: shut down cleanly")
	return nil
}

func phaseFromRow(p string) daemon.Phase {
	switch p {
	case "paused":
		return daemon.PhasePaused
	case "ended":
		return daemon.PhaseEnded
	default:
		return daemon.PhaseActive
	}
}

// listGameSlugs enumerates data/games/<slug> directories.
func listGameSlugs() ([]string, error) {
	root := filepath.Join(globals.DataDir, "games")
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list game slugs: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// scanGameDirs implements the hot-reload scan of spec section 4.8:
// directories present on disk but not yet known to the caller are
// reported as GameDiscovered. The daemon's Update already no-ops a
// GameDiscovered for an already-known id, so this always reports every
// directory and lets Update dedupe.
func scanGameDirs(root string) ([]daemon.GameDiscovered, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]daemon.GameDiscovered, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		out = append(out, daemon.GameDiscovered{ID: e.Name(), Path: filepath.Join(root, e.Name())})
	}
	return out, nil
}

func addStartCommand(parser *flags.Parser) {
	_, err := parser.AddCommand("start",
		"Run the daemon event loop",
		"Loads every known game and drives the turn-resolution event loop until interrupted.",
		&startCommand{})
	if err != nil {
		panic(err)
	}
}
