package entity

import (
	"fmt"

	"github.com/greenm01/ec4x/internal/indices"
)

// World owns every entity manager plus the derived indices for one game.
// It is the sole chokepoint for mutation: every exported method either
// succeeds and leaves every invariant intact, or is a no-op (spec section
// 4.1). No external package may reach into a Store directly.
type World struct {
	Houses      *Store[House]
	Systems     *Store[System]
	Lanes       *Store[Lane]
	Colonies    *Store[Colony]
	Fleets      *Store[Fleet]
	Squadrons   *Store[Squadron]
	Ships       *Store[Ship]
	GroundUnits *Store[GroundUnit]
	Facilities  *Store[Facility]
	Projects    *Store[ConstructionProject]
	SpyMissions *Store[SpyMission]

	Index *indices.Indices
}

// NewWorld creates an empty World with freshly rebuilt (also empty)
// indices.
func NewWorld() *World {
	w := &World{
		Houses:      NewStore[House](),
		Systems:     NewStore[System](),
		Lanes:       NewStore[Lane](),
		Colonies:    NewStore[Colony](),
		Fleets:      NewStore[Fleet](),
		Squadrons:   NewStore[Squadron](),
		Ships:       NewStore[Ship](),
		GroundUnits: NewStore[GroundUnit](),
		Facilities:  NewStore[Facility](),
		Projects:    NewStore[ConstructionProject](),
		SpyMissions: NewStore[SpyMission](),
	}
	w.RebuildIndices()
	return w
}

// Clone deep-copies every store (shallow copy of each entity value; see
// Store.Clone) and rebuilds indices fresh, so a worker can mutate the
// clone without affecting the original snapshot still held by the caller.
func (w *World) Clone() *World {
	c := &World{
		Houses:      w.Houses.Clone(),
		Systems:     w.Systems.Clone(),
		Lanes:       w.Lanes.Clone(),
		Colonies:    w.Colonies.Clone(),
		Fleets:      w.Fleets.Clone(),
		Squadrons:   w.Squadrons.Clone(),
		Ships:       w.Ships.Clone(),
		GroundUnits: w.GroundUnits.Clone(),
		Facilities:  w.Facilities.Clone(),
		Projects:    w.Projects.Clone(),
		SpyMissions: w.SpyMissions.Clone(),
	}
	c.RebuildIndices()
	return c
}

// RebuildIndices recomputes every derived secondary map from scratch.
// Indices are never authoritative (spec section 3 invariant): this
// function must always be able to reconstruct them from entity contents
// alone, and is called after every phase's entity mutations settle.
func (w *World) RebuildIndices() {
	idx := indices.New()
	for id, f := range w.Fleets.Iterate(nil) {
		idx.AddFleetLocation(uint64(f.Location), uint64(id))
		idx.AddFleetOwner(uint64(f.Owner), uint64(id))
	}
	for id, c := range w.Colonies.Iterate(nil) {
		idx.AddColonyOwner(uint64(c.Owner), uint64(id))
		idx.AddColonyBySystem(uint64(c.SystemID), uint64(id))
	}
	for id, s := range w.Squadrons.Iterate(nil) {
		idx.AddSquadronFleet(uint64(s.ParentFleetID), uint64(id))
	}
	for id, s := range w.Ships.Iterate(nil) {
		idx.AddShipFleet(uint64(s.FleetID), uint64(id))
		if s.SquadronID != 0 {
			idx.AddShipSquadron(uint64(s.SquadronID), uint64(id))
		}
	}
	for id, l := range w.Lanes.Iterate(nil) {
		idx.AddLaneEndpoint(uint64(l.A), uint64(id))
		idx.AddLaneEndpoint(uint64(l.B), uint64(id))
	}
	w.Index = idx
}

// FleetsAt returns every fleet id located at system sys.
func (w *World) FleetsAt(sys ID) []ID {
	raw := w.Index.FleetsAtLocation(uint64(sys))
	out := make([]ID, len(raw))
	for i, v := range raw {
		out[i] = ID(v)
	}
	return out
}

// ColonyAt returns the colony id at system sys, if any.
func (w *World) ColonyAt(sys ID) (ID, bool) {
	ids := w.Index.ColoniesBySystem(uint64(sys))
	if len(ids) == 0 {
		return 0, false
	}
	return ID(ids[0]), true
}

// --- Higher-level operations (spec section 4.1) ---

// CreateFleet inserts a new fleet with no squadrons and registers it in
// the indices. A fleet with zero squadrons is a transient state only
// valid until the caller attaches squadrons in the same logical step;
// CheckInvariants reports a fleet that is still empty as a violation.
func (w *World) CreateFleet(f Fleet) ID {
	if f.MissionState == "" {
		f.MissionState = MissionIdle
	}
	if f.Status == "" {
		f.Status = FleetActive
	}
	id := w.Fleets.Insert(f)
	f.ID = id
	w.Fleets.Update(id, f)
	w.Index.AddFleetLocation(uint64(f.Location), uint64(id))
	w.Index.AddFleetOwner(uint64(f.Owner), uint64(id))
	return id
}

// AttachSquadron adds a squadron to a fleet's roster, updating both
// sides atomically.
func (w *World) AttachSquadron(fleetID, squadronID ID) error {
	f, ok := w.Fleets.Get(fleetID)
	if !ok {
		return fmt.Errorf("entity: AttachSquadron: fleet %s: %w", fleetID, ErrNotFound)
	}
	sq, ok := w.Squadrons.Get(squadronID)
	if !ok {
		return fmt.Errorf("entity: AttachSquadron: squadron %s: %w", squadronID, ErrNotFound)
	}
	sq.ParentFleetID = fleetID
	if err := w.Squadrons.Update(squadronID, sq); err != nil {
		return err
	}
	f.SquadronIDs = append(f.SquadronIDs, squadronID)
	if err := w.Fleets.Update(fleetID, f); err != nil {
		return err
	}
	w.Index.AddSquadronFleet(uint64(fleetID), uint64(squadronID))
	return nil
}

// DestroyShip removes a ship and, if it was its squadron's last member,
// cascades to destroy the squadron, and if that squadron was its fleet's
// last squadron, cascades to destroy the fleet — the "fleet whose
// squadrons list is empty must be destroyed in the same step that
// emptied it" invariant, enforced at the source rather than left to a
// later sweep.
func (w *World) DestroyShip(shipID ID) error {
	sh, ok := w.Ships.Get(shipID)
	if !ok {
		return nil // idempotent
	}
	w.Ships.Remove(shipID)
	w.Index.RemoveShip(uint64(sh.FleetID), uint64(sh.SquadronID), uint64(shipID))

	if sh.SquadronID == 0 {
		return nil
	}
	sq, ok := w.Squadrons.Get(sh.SquadronID)
	if !ok {
		return nil
	}
	sq.MemberIDs = removeID(sq.MemberIDs, shipID)
	if sq.FlagshipID == shipID && len(sq.MemberIDs) > 0 {
		sq.FlagshipID = sq.MemberIDs[0]
	}
	if len(sq.MemberIDs) == 0 {
		return w.destroySquadron(sh.SquadronID)
	}
	return w.Squadrons.Update(sh.SquadronID, sq)
}

func (w *World) destroySquadron(squadronID ID) error {
	sq, ok := w.Squadrons.Get(squadronID)
	if !ok {
		return nil
	}
	w.Squadrons.Remove(squadronID)
	w.Index.RemoveSquadron(uint64(sq.ParentFleetID), uint64(squadronID))

	f, ok := w.Fleets.Get(sq.ParentFleetID)
	if !ok {
		return nil
	}
	f.SquadronIDs = removeID(f.SquadronIDs, squadronID)
	if len(f.SquadronIDs) == 0 {
		return w.DestroyFleet(sq.ParentFleetID)
	}
	return w.Fleets.Update(sq.ParentFleetID, f)
}

// DestroyFleet removes a fleet and every squadron/ship still attached to
// it (normally called only when the squadron list is already empty, but
// safe to call directly e.g. when a fleet is wiped wholesale in combat).
func (w *World) DestroyFleet(fleetID ID) error {
	f, ok := w.Fleets.Get(fleetID)
	if !ok {
		return nil
	}
	for _, sqID := range append([]ID{}, f.SquadronIDs...) {
		sq, ok := w.Squadrons.Get(sqID)
		if !ok {
			continue
		}
		for _, shID := range append([]ID{}, sq.MemberIDs...) {
			w.Ships.Remove(shID)
		}
		w.Squadrons.Remove(sqID)
	}
	w.Fleets.Remove(fleetID)
	w.Index.RemoveFleet(uint64(f.Location), uint64(f.Owner), uint64(fleetID))
	return nil
}

// MergeFleets folds src's squadrons into dst and destroys src. Both
// fleets must share an owner and location; callers (Production phase
// step 4, Command phase zero-turn administrative commands) validate that
// before calling.
func (w *World) MergeFleets(dst, src ID) error {
	if dst == src {
		return nil
	}
	sf, ok := w.Fleets.Get(src)
	if !ok {
		return fmt.Errorf("entity: MergeFleets: src %s: %w", src, ErrNotFound)
	}
	df, ok := w.Fleets.Get(dst)
	if !ok {
		return fmt.Errorf("entity: MergeFleets: dst %s: %w", dst, ErrNotFound)
	}
	for _, sqID := range sf.SquadronIDs {
		sq, ok := w.Squadrons.Get(sqID)
		if !ok {
			continue
		}
		sq.ParentFleetID = dst
		if err := w.Squadrons.Update(sqID, sq); err != nil {
			return err
		}
		df.SquadronIDs = append(df.SquadronIDs, sqID)
		w.Index.RemoveSquadron(uint64(src), uint64(sqID))
		w.Index.AddSquadronFleet(uint64(dst), uint64(sqID))
		for _, shID := range sq.MemberIDs {
			if sh, ok := w.Ships.Get(shID); ok {
				sh.FleetID = dst
				w.Ships.Update(shID, sh)
			}
		}
	}
	for _, shID := range sf.AuxiliaryShipIDs {
		if sh, ok := w.Ships.Get(shID); ok {
			sh.FleetID = dst
			w.Ships.Update(shID, sh)
		}
	}
	df.AuxiliaryShipIDs = append(df.AuxiliaryShipIDs, sf.AuxiliaryShipIDs...)
	if err := w.Fleets.Update(dst, df); err != nil {
		return err
	}
	w.Fleets.Remove(src)
	w.Index.RemoveFleet(uint64(sf.Location), uint64(sf.Owner), uint64(src))
	return nil
}

// TransferColony reassigns ownership of a colony (Invade/Blitz success)
// and applies the industrial-loss rule for a full Invade.
func (w *World) TransferColony(colonyID, newOwner ID, industrialLossFraction float64) error {
	c, ok := w.Colonies.Get(colonyID)
	if !ok {
		return fmt.Errorf("entity: TransferColony: %s: %w", colonyID, ErrNotFound)
	}
	oldOwner := c.Owner
	c.Owner = newOwner
	c.IndustrialUnits = int64(float64(c.IndustrialUnits) * (1 - industrialLossFraction))
	c.Blockaded = false
	if err := w.Colonies.Update(colonyID, c); err != nil {
		return err
	}
	w.Index.RemoveColonyOwner(uint64(oldOwner), uint64(colonyID))
	w.Index.AddColonyOwner(uint64(newOwner), uint64(colonyID))
	return nil
}

func removeID(ids []ID, target ID) []ID {
	out := ids[:0:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
