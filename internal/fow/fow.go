// Package fow implements the fog-of-war projector of spec section 4.4:
// project() turns authoritative state into one house's PlayerState, and
// diff() turns two successive PlayerStates into a PlayerStateDelta
// suitable for encrypted distribution. Both are pure and idempotent (spec
// section 9's "Fog of war" design note), which is what lets the daemon
// persist PlayerState snapshots and recompute any delta from history.
package fow

import (
	"bytes"
	"sort"

	"github.com/greenm01/ec4x/internal/codec"
	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/rules"
)

// Quality is an alias of entity.IntelQuality: engine and projector share
// one definition so they never disagree about confidence ordering (see
// SPEC_FULL.md's "Espionage quality tiers" note).
type Quality = entity.IntelQuality

// HousePublic is the public data every house sees about every other
// house (spec section 4.4: "public data for all houses").
type HousePublic struct {
	ID                entity.ID `bson:"_id"`
	Name              string    `bson:"name"`
	Prestige          int64     `bson:"prestige"`
	ColonyCount       int       `bson:"colonyCount"`
	Eliminated        bool      `bson:"eliminated"`
	RelationToViewer  entity.RelationState `bson:"relationToViewer"`
}

// ActProgression is the game-wide milestone payload (glossary: "Act
// progression"), computed from aggregate colonization percent and
// prestige; identical for every house, so it rides in PlayerState rather
// than being recomputed per observer.
type ActProgression struct {
	Act                  int     `bson:"act"`
	ColonizationPercent  float64 `bson:"colonizationPercent"`
}

// IntelRow is one observed-entity row, tagged with how it was obtained.
// Kind+ID identify the observed entity; Snapshot is the opaque encoded
// copy captured at the recorded quality (see entity.IntelEntry).
type IntelRow struct {
	Kind         entity.Kind    `bson:"kind"`
	ID           entity.ID      `bson:"id"`
	Quality      Quality        `bson:"quality"`
	ObservedTurn int            `bson:"observedTurn"`
	Snapshot     []byte         `bson:"snapshot"`
}

// PlayerState is one house's complete view of the world at a turn
// boundary (spec section 4.4). It is itself BSON-tagged so project()'s
// output can be persisted directly as player_state_snapshots.state_blob
// (spec section 6.4 of SPEC_FULL.md) without a second encoding scheme.
type PlayerState struct {
	GameID     string      `bson:"gameId"`
	Turn       int         `bson:"turn"`
	House      entity.ID   `bson:"house"`
	ConfigHash string      `bson:"configHash"`

	// Own entities in full (spec section 4.4: "the house's own entities
	// in full").
	OwnColonies    []entity.Colony    `bson:"ownColonies"`
	OwnFleets      []entity.Fleet     `bson:"ownFleets"`
	OwnSquadrons   []entity.Squadron  `bson:"ownSquadrons"`
	OwnShips       []entity.Ship      `bson:"ownShips"`
	OwnGroundUnits []entity.GroundUnit `bson:"ownGroundUnits"`
	OwnFacilities  []entity.Facility  `bson:"ownFacilities"`
	OwnProjects    []entity.ConstructionProject `bson:"ownProjects"`
	Self           entity.House       `bson:"self"`

	// Public data for every house, including the viewer's own row.
	Houses []HousePublic `bson:"houses"`

	// Static map data: every system and lane is always visible (jump
	// lanes and star positions are public knowledge; only occupants are
	// fogged), matching how System/Lane carry no owner field in the data
	// model.
	Systems []entity.System `bson:"systems"`
	Lanes   []entity.Lane   `bson:"lanes"`

	// Intelligence rows: one per (kind, id) the house's IntelDB covers,
	// sourced from entity.House.IntelDB.
	Intel []IntelRow `bson:"intel"`

	Act ActProgression `bson:"act"`
}

// Project returns house's PlayerState from authoritative state. It
// filters by ownership (own entities in full) and by the house's
// intelligence database (everything else, at whatever quality was last
// recorded) — it never leaks an un-intel'd foreign entity, and an
// eliminated house's own rows naturally disappear the turn its colonies,
// fleets, and ships are gone (spec section 8's testable property).
func Project(w *entity.World, rls *rules.Rules, gameID string, turn int, houseID entity.ID) PlayerState {
	self, _ := w.Houses.Get(houseID)

	ps := PlayerState{
		GameID:     gameID,
		Turn:       turn,
		House:      houseID,
		ConfigHash: rls.ConfigHash,
		Self:       self,
	}

	for id, c := range w.Colonies.Iterate(func(_ entity.ID, c entity.Colony) bool { return c.Owner == houseID }) {
		c.ID = id
		ps.OwnColonies = append(ps.OwnColonies, c)
	}
	for id, f := range w.Fleets.Iterate(func(_ entity.ID, f entity.Fleet) bool { return f.Owner == houseID }) {
		f.ID = id
		ps.OwnFleets = append(ps.OwnFleets, f)
	}
	for id, sq := range w.Squadrons.Iterate(func(_ entity.ID, s entity.Squadron) bool { return s.Owner == houseID }) {
		sq.ID = id
		ps.OwnSquadrons = append(ps.OwnSquadrons, sq)
	}
	for id, sh := range w.Ships.Iterate(func(_ entity.ID, s entity.Ship) bool { return s.Owner == houseID }) {
		sh.ID = id
		ps.OwnShips = append(ps.OwnShips, sh)
	}
	for id, g := range w.GroundUnits.Iterate(func(_ entity.ID, g entity.GroundUnit) bool { return g.Owner == houseID }) {
		g.ID = id
		ps.OwnGroundUnits = append(ps.OwnGroundUnits, g)
	}
	for id, fa := range w.Facilities.Iterate(func(_ entity.ID, f entity.Facility) bool { return f.Owner == houseID }) {
		fa.ID = id
		ps.OwnFacilities = append(ps.OwnFacilities, fa)
	}
	for id, p := range w.Projects.Iterate(nil) {
		col, ok := w.Colonies.Get(p.ColonyID)
		if !ok || col.Owner != houseID {
			continue
		}
		p.ID = id
		ps.OwnProjects = append(ps.OwnProjects, p)
	}

	colonyCounts := make(map[entity.ID]int)
	for _, c := range w.Colonies.Iterate(nil) {
		colonyCounts[c.Owner]++
	}
	for id, h := range w.Houses.Iterate(nil) {
		rel := entity.RelationUnknown
		if id == houseID {
			rel = entity.RelationAlly
		} else if r, ok := self.Relations[id]; ok {
			rel = r.State
		}
		ps.Houses = append(ps.Houses, HousePublic{
			ID:               id,
			Name:             h.Name,
			Prestige:         h.Prestige,
			ColonyCount:      colonyCounts[id],
			Eliminated:       h.Eliminated,
			RelationToViewer: rel,
		})
	}

	for id, s := range w.Systems.Iterate(nil) {
		s.ID = id
		ps.Systems = append(ps.Systems, s)
	}
	for id, l := range w.Lanes.Iterate(nil) {
		l.ID = id
		ps.Lanes = append(ps.Lanes, l)
	}

	for key, entry := range self.IntelDB {
		ps.Intel = append(ps.Intel, IntelRow{
			Kind:         key.Kind,
			ID:           key.ID,
			Quality:      entry.Quality,
			ObservedTurn: entry.ObservedTurn,
			Snapshot:     entry.Snapshot,
		})
	}

	sort.Slice(ps.OwnColonies, func(i, j int) bool { return ps.OwnColonies[i].ID < ps.OwnColonies[j].ID })
	sort.Slice(ps.OwnFleets, func(i, j int) bool { return ps.OwnFleets[i].ID < ps.OwnFleets[j].ID })
	sort.Slice(ps.OwnSquadrons, func(i, j int) bool { return ps.OwnSquadrons[i].ID < ps.OwnSquadrons[j].ID })
	sort.Slice(ps.OwnShips, func(i, j int) bool { return ps.OwnShips[i].ID < ps.OwnShips[j].ID })
	sort.Slice(ps.OwnGroundUnits, func(i, j int) bool { return ps.OwnGroundUnits[i].ID < ps.OwnGroundUnits[j].ID })
	sort.Slice(ps.OwnFacilities, func(i, j int) bool { return ps.OwnFacilities[i].ID < ps.OwnFacilities[j].ID })
	sort.Slice(ps.OwnProjects, func(i, j int) bool { return ps.OwnProjects[i].ID < ps.OwnProjects[j].ID })
	sort.Slice(ps.Houses, func(i, j int) bool { return ps.Houses[i].ID < ps.Houses[j].ID })
	sort.Slice(ps.Systems, func(i, j int) bool { return ps.Systems[i].ID < ps.Systems[j].ID })
	sort.Slice(ps.Lanes, func(i, j int) bool { return ps.Lanes[i].ID < ps.Lanes[j].ID })
	sort.Slice(ps.Intel, func(i, j int) bool {
		return ps.Intel[i].Kind < ps.Intel[j].Kind || (ps.Intel[i].Kind == ps.Intel[j].Kind && ps.Intel[i].ID < ps.Intel[j].ID)
	})

	ps.Act = computeActProgression(w)

	return ps
}

// computeActProgression derives the game-wide milestone from aggregate
// colonization percent (owned colonies over total colonizable systems)
// and the highest current prestige, per the glossary definition.
func computeActProgression(w *entity.World) ActProgression {
	totalSystems := w.Systems.Len()
	ownedColonies := w.Colonies.Len()
	pct := 0.0
	if totalSystems > 0 {
		pct = float64(ownedColonies) / float64(totalSystems)
	}
	var topPrestige int64
	for _, h := range w.Houses.Iterate(nil) {
		if h.Prestige > topPrestige {
			topPrestige = h.Prestige
		}
	}
	act := 1
	switch {
	case pct >= 0.66 || topPrestige >= 6000:
		act = 3
	case pct >= 0.33 || topPrestige >= 3000:
		act = 2
	}
	return ActProgression{Act: act, ColonizationPercent: pct}
}

// PlayerStateDelta is emitted per entity kind as three lists (added,
// updated, removed-by-id), plus the act-progression payload, per spec
// section 4.4.
type PlayerStateDelta struct {
	GameID     string `bson:"gameId"`
	Turn       int    `bson:"turn"`
	House      entity.ID `bson:"house"`
	ConfigHash string `bson:"configHash"`

	Colonies    KindDelta[entity.Colony]    `bson:"colonies"`
	Fleets      KindDelta[entity.Fleet]     `bson:"fleets"`
	Squadrons   KindDelta[entity.Squadron]  `bson:"squadrons"`
	Ships       KindDelta[entity.Ship]      `bson:"ships"`
	GroundUnits KindDelta[entity.GroundUnit] `bson:"groundUnits"`
	Facilities  KindDelta[entity.Facility]  `bson:"facilities"`
	Projects    KindDelta[entity.ConstructionProject] `bson:"projects"`
	Houses      KindDelta[HousePublic]      `bson:"houses"`
	Intel       KindDelta[IntelRow]         `bson:"intel"`

	ActChanged bool           `bson:"actChanged"`
	Act        ActProgression `bson:"act,omitempty"`
}

// KindDelta holds the added/updated/removed triple for one entity kind.
// Removed carries whatever key type diffSlice was called with for this
// kind (a bare entity.ID for single-store kinds, entity.IntelKey for the
// cross-store intel rows where a bare id could collide across kinds).
type KindDelta[T any] struct {
	Added   []T   `bson:"added,omitempty"`
	Updated []T   `bson:"updated,omitempty"`
	Removed []any `bson:"removed,omitempty"`
}

// Empty reports whether this kind's delta carries no changes at all,
// used by Diff's minimality property (spec section 8 scenario 6).
func (d KindDelta[T]) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// Diff computes the delta between two successive PlayerState snapshots
// for the same house. When prev is nil every entity present in next is
// emitted as added (spec section 4.4 and section 8's diff(∅,s) property).
func Diff(prev, next *PlayerState) PlayerStateDelta {
	d := PlayerStateDelta{
		GameID:     next.GameID,
		Turn:       next.Turn,
		House:      next.House,
		ConfigHash: next.ConfigHash,
	}

	d.Colonies = diffSlice(prevSlice(prev, func(p *PlayerState) []entity.Colony { return p.OwnColonies }), next.OwnColonies,
		func(c entity.Colony) any { return c.ID })
	d.Fleets = diffSlice(prevSlice(prev, func(p *PlayerState) []entity.Fleet { return p.OwnFleets }), next.OwnFleets,
		func(f entity.Fleet) any { return f.ID })
	d.Squadrons = diffSlice(prevSlice(prev, func(p *PlayerState) []entity.Squadron { return p.OwnSquadrons }), next.OwnSquadrons,
		func(s entity.Squadron) any { return s.ID })
	d.Ships = diffSlice(prevSlice(prev, func(p *PlayerState) []entity.Ship { return p.OwnShips }), next.OwnShips,
		func(s entity.Ship) any { return s.ID })
	d.GroundUnits = diffSlice(prevSlice(prev, func(p *PlayerState) []entity.GroundUnit { return p.OwnGroundUnits }), next.OwnGroundUnits,
		func(g entity.GroundUnit) any { return g.ID })
	d.Facilities = diffSlice(prevSlice(prev, func(p *PlayerState) []entity.Facility { return p.OwnFacilities }), next.OwnFacilities,
		func(f entity.Facility) any { return f.ID })
	d.Projects = diffSlice(prevSlice(prev, func(p *PlayerState) []entity.ConstructionProject { return p.OwnProjects }), next.OwnProjects,
		func(p entity.ConstructionProject) any { return p.ID })
	d.Houses = diffSlice(prevSlice(prev, func(p *PlayerState) []HousePublic { return p.Houses }), next.Houses,
		func(h HousePublic) any { return h.ID })
	d.Intel = diffSlice(prevSlice(prev, func(p *PlayerState) []IntelRow { return p.Intel }), next.Intel,
		func(r IntelRow) any { return entity.IntelKey{Kind: r.Kind, ID: r.ID} })

	if prev == nil || prev.Act != next.Act {
		d.ActChanged = true
		d.Act = next.Act
	}

	return d
}

func prevSlice[T any](prev *PlayerState, get func(*PlayerState) []T) []T {
	if prev == nil {
		return nil
	}
	return get(prev)
}

// diffSlice compares two entity slices of the same kind by key, encoding
// each for byte-equality comparison (entity structs contain slices/maps
// that aren't `==`-comparable, so BSON-encoded bytes stand in for a deep
// equality check — consistent with the rest of this codebase using
// codec.Marshal as its one canonical encoding). The key function returns
// `any` rather than entity.ID because IntelRow's key must combine Kind
// and ID to avoid collisions across entity kinds sharing the same
// per-store counter.
func diffSlice[T any](prev, next []T, key func(T) any) KindDelta[T] {
	var d KindDelta[T]

	prevByID := make(map[any]T, len(prev))
	for _, v := range prev {
		prevByID[key(v)] = v
	}
	nextByID := make(map[any]T, len(next))
	for _, v := range next {
		nextByID[key(v)] = v
	}

	for k, nv := range nextByID {
		pv, existed := prevByID[k]
		if !existed {
			d.Added = append(d.Added, nv)
			continue
		}
		if !bytesEqual(pv, nv) {
			d.Updated = append(d.Updated, nv)
		}
	}
	for k := range prevByID {
		if _, ok := nextByID[k]; !ok {
			d.Removed = append(d.Removed, k)
		}
	}
	return d
}

func bytesEqual[T any](a, b T) bool {
	ab, errA := codec.Marshal(a)
	bb, errB := codec.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
