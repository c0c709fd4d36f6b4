package engine

import (
	"math/rand/v2"
	"sort"

	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/events"
	"github.com/greenm01/ec4x/internal/rules"
)

// runProduction executes spec section 4.3.4's eight steps. Adapted from
// the teacher's maps/queue.go travel advancement, generalized to the
// lane-class travel rules and the construction/research pipeline this
// spec adds on top.
func runProduction(w *entity.World, rls *rules.Rules, sink *events.Sink, rng *rand.Rand, turn int) {
	activateCommands(w)
	travel(w, sink)
	arrivalDetection(w, sink, turn)
	finalizeAdministrative(w, sink)
	scoutDetection(w, sink, rng, turn)
	advanceConstruction(w, sink)
	advanceResearch(w, rls, sink, rng)
	cleanupAndAdvance(w, turn)
}

// activateCommands implements step 1: fleets with an empty active slot
// consult their standing slot; matching fleets transition to Traveling.
func activateCommands(w *entity.World) {
	for id, f := range w.Fleets.Iterate(nil) {
		if f.ActiveCommand == nil && f.StandingCommand != nil {
			cmd := *f.StandingCommand
			f.ActiveCommand = &cmd
		}
		if f.ActiveCommand != nil {
			f.MissionState = entity.MissionTraveling
			w.Fleets.Update(id, f)
		}
	}
}

// travel implements step 2: fleets advance toward their command's
// target system along jump lanes. Major lanes permit two hops per turn
// when every system on the path belongs to the owner; minor and
// restricted lanes permit one hop; crippled or auxiliary ships cannot
// use restricted lanes.
func travel(w *entity.World, sink *events.Sink) {
	for id, f := range w.Fleets.Iterate(nil) {
		if f.ActiveCommand == nil || f.MissionState != entity.MissionTraveling {
			continue
		}
		target := f.ActiveCommand.TargetSystem
		if target == 0 || f.Location == target {
			continue
		}
		hops := maxHops(w, f)
		loc := f.Location
		for i := 0; i < hops && loc != target; i++ {
			next, ok := nextHop(w, loc, target, f)
			if !ok {
				break
			}
			loc = next
		}
		if loc != f.Location {
			f.Location = loc
			w.Fleets.Update(id, f)
		}
	}
	w.RebuildIndices()
}

func maxHops(w *entity.World, f entity.Fleet) int {
	if fleetHasRestrictedShip(w, f) {
		return 1
	}
	for _, laneID := range w.Index.LanesAtEndpoint(uint64(f.Location)) {
		lane, ok := w.Lanes.Get(entity.ID(laneID))
		if ok && lane.Class == entity.LaneMajor && laneFullyOwned(w, lane, f.Owner) {
			return 2
		}
	}
	return 1
}

func fleetHasRestrictedShip(w *entity.World, f entity.Fleet) bool {
	for _, sqID := range f.SquadronIDs {
		sq, ok := w.Squadrons.Get(sqID)
		if !ok {
			continue
		}
		if sq.Type == entity.SquadronAuxiliary {
			return true
		}
		for _, shID := range sq.MemberIDs {
			sh, ok := w.Ships.Get(shID)
			if ok && sh.CombatState == entity.ShipCrippled {
				return true
			}
		}
	}
	return false
}

func laneFullyOwned(w *entity.World, lane entity.Lane, owner entity.ID) bool {
	for _, sysID := range []entity.ID{lane.A, lane.B} {
		colID, ok := w.ColonyAt(sysID)
		if !ok {
			return false
		}
		col, ok := w.Colonies.Get(colID)
		if !ok || col.Owner != owner {
			return false
		}
	}
	return true
}

// nextHop returns target when a lane the fleet may use joins loc to it
// directly; otherwise it returns the far end of the first usable lane at
// loc, which need not be closer to target. There is no pathfinding here,
// since full fog-of-war-constrained pathfinding is driven by the player
// TUI's local cache, out of this engine's scope per spec section 1.
func nextHop(w *entity.World, loc, target entity.ID, f entity.Fleet) (entity.ID, bool) {
	for _, laneID := range w.Index.LanesAtEndpoint(uint64(loc)) {
		lane, ok := w.Lanes.Get(entity.ID(laneID))
		if !ok {
			continue
		}
		if lane.Class == entity.LaneRestricted && fleetHasRestrictedShip(w, f) {
			continue
		}
		var other entity.ID
		if lane.A == loc {
			other = lane.B
		} else if lane.B == loc {
			other = lane.A
		} else {
			continue
		}
		if other == target {
			return other, true
		}
	}
	// no direct lane to target: take any legal hop to make progress:
	for _, laneID := range w.Index.LanesAtEndpoint(uint64(loc)) {
		lane, ok := w.Lanes.Get(entity.ID(laneID))
		if !ok {
			continue
		}
		if lane.Class == entity.LaneRestricted && fleetHasRestrictedShip(w, f) {
			continue
		}
		if lane.A == loc {
			return lane.B, true
		}
		return lane.A, true
	}
	return 0, false
}

// arrivalDetection implements step 3: a fleet at its command's target
// switches to Executing and emits FleetArrived; this is the sole trigger
// for Conflict/Income execution next turn. A fleet arriving at a hostile
// house's colony also records a visual-quality intel entry on that colony
// (spec section 4.4's fourth intel source).
func arrivalDetection(w *entity.World, sink *events.Sink, turn int) {
	for id, f := range w.Fleets.Iterate(nil) {
		if f.ActiveCommand == nil || f.MissionState != entity.MissionTraveling {
			continue
		}
		if f.Location == f.ActiveCommand.TargetSystem {
			f.MissionState = entity.MissionExecuting
			w.Fleets.Update(id, f)
			sink.Emit(events.Event{Kind: events.KindFleetArrived, House: f.Owner, Fleet: id, System: f.Location, Description: "fleet arrived"})
			if colID, ok := w.ColonyAt(f.Location); ok {
				if col, ok := w.Colonies.Get(colID); ok && hostile(w, f.Owner, col.Owner) {
					recordIntel(w, f.Owner, entity.KindColony, colID, entity.IntelVisual, turn, col)
				}
			}
		}
	}
}

// finalizeAdministrative implements step 4: commands that complete in
// Production (Hold, SeekHome, JoinFleet, Rendezvous, Reserve/Mothball/
// Reactivate, View) finalize here, including fleet merges for JoinFleet
// and Rendezvous.
func finalizeAdministrative(w *entity.World, sink *events.Sink) {
	for id, f := range w.Fleets.Iterate(nil) {
		if f.ActiveCommand == nil || f.MissionState != entity.MissionExecuting {
			continue
		}
		switch f.ActiveCommand.Kind {
		case entity.CmdHold, entity.CmdView:
			f.MissionState = entity.MissionIdle
			f.ActiveCommand = nil
			w.Fleets.Update(id, f)
		case entity.CmdSeekHome:
			f.MissionState = entity.MissionIdle
			f.ActiveCommand = nil
			w.Fleets.Update(id, f)
		case entity.CmdJoinFleet, entity.CmdRendezvous:
			target := f.ActiveCommand.TargetFleet
			if target != 0 {
				if err := w.MergeFleets(target, id); err == nil {
					sink.Emit(events.Event{Kind: events.KindFleetMerged, House: f.Owner, Fleet: target, Description: "fleets merged"})
				}
			}
		case entity.CmdReserve:
			f.Status = entity.FleetReserve
			f.MissionState = entity.MissionIdle
			f.ActiveCommand = nil
			w.Fleets.Update(id, f)
		case entity.CmdMothball:
			f.Status = entity.FleetMothballed
			f.MissionState = entity.MissionIdle
			f.ActiveCommand = nil
			w.Fleets.Update(id, f)
		case entity.CmdReactivate:
			f.Status = entity.FleetActive
			f.MissionState = entity.MissionIdle
			f.ActiveCommand = nil
			w.Fleets.Update(id, f)
		}
	}
}

// scoutDetection implements step 5: scout-only fleets from distinct
// houses at the same system each roll independently; a successful roll
// adds a visual-quality fleet intel entry for each of the other house's
// scout fleets there to the observer's database (spec section 4.4's
// fifth intel source). No combat results from this.
func scoutDetection(w *entity.World, sink *events.Sink, rng *rand.Rand, turn int) {
	for sysID, fleetIDs := range fleetsBySystem(w) {
		var scouts []entity.ID
		for _, fid := range fleetIDs {
			if isScoutOnly(w, fid) {
				scouts = append(scouts, fid)
			}
		}
		if len(scouts) < 2 {
			continue
		}
		byOwner := groupByOwner(w, scouts)
		owners := make([]entity.ID, 0, len(byOwner))
		for o := range byOwner {
			owners = append(owners, o)
		}
		sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
		for i := range owners {
			for j := range owners {
				if i == j {
					continue
				}
				if rng.Float64() < 0.5 {
					sink.Emit(events.Event{Kind: events.KindScoutSighting, House: owners[i], System: sysID, Description: "scout detected foreign scout"})
					for _, fid := range byOwner[owners[j]] {
						if f, ok := w.Fleets.Get(fid); ok {
							recordIntel(w, owners[i], entity.KindFleet, fid, entity.IntelVisual, turn, f)
						}
					}
				}
			}
		}
	}
}

func isScoutOnly(w *entity.World, fleetID entity.ID) bool {
	f, ok := w.Fleets.Get(fleetID)
	if !ok || len(f.SquadronIDs) == 0 {
		return false
	}
	for _, sqID := range f.SquadronIDs {
		sq, ok := w.Squadrons.Get(sqID)
		if !ok || !onlyScouts(w, sq) {
			return false
		}
	}
	return true
}

// advanceConstruction implements step 6: planetary defense items
// commission immediately; ship items wait for the Command phase.
func advanceConstruction(w *entity.World, sink *events.Sink) {
	for id, p := range w.Projects.Iterate(nil) {
		if p.Progress >= p.Cost {
			continue
		}
		col, ok := w.Colonies.Get(p.ColonyID)
		if !ok {
			w.Projects.Remove(id)
			continue
		}
		increment := col.IndustrialUnits / 10
		if increment < 1 {
			increment = 1
		}
		p.Progress += int(increment)
		if p.Progress < p.Cost {
			w.Projects.Update(id, p)
			continue
		}
		if p.Target.IsShip() {
			// held in the pending buffer (the project entity itself) until
			// Command phase step 2 commissions it.
			w.Projects.Update(id, p)
			continue
		}
		commissionPlanetary(w, sink, col, p)
		w.Projects.Remove(id)
	}
}

func commissionPlanetary(w *entity.World, sink *events.Sink, col entity.Colony, p entity.ConstructionProject) {
	switch {
	case p.Target.FacilityKind != "":
		fac := entity.Facility{Owner: col.Owner, ColonyID: p.ColonyID, Kind: p.Target.FacilityKind, CombatState: entity.ShipUndamaged}
		facID := w.Facilities.Insert(fac)
		fac.ID = facID
		w.Facilities.Update(facID, fac)
	case p.Target.GroundUnit != "":
		gu := entity.GroundUnit{Owner: col.Owner, Type: p.Target.GroundUnit, Location: entity.Ref{Kind: entity.KindColony, ID: p.ColonyID}, CombatState: entity.ShipUndamaged}
		guID := w.GroundUnits.Insert(gu)
		gu.ID = guID
		w.GroundUnits.Update(guID, gu)
	}
	sink.Emit(events.Event{Kind: events.KindConstructionCompleted, House: col.Owner, System: col.SystemID, Description: "construction completed"})
}

// advanceResearch implements step 7: attempt to purchase the next level
// in each track in priority order out of accumulated points. No
// breakthrough rolls are made; rng is not drawn from.
func advanceResearch(w *entity.World, rls *rules.Rules, sink *events.Sink, rng *rand.Rand) {
	priority := []entity.TechField{entity.TechEconomic, entity.TechScience, entity.TechWeapons, entity.TechShields, entity.TechPropulsion, entity.TechElectronics, entity.TechConstruction}
	for id, h := range w.Houses.Iterate(nil) {
		changed := false
		for _, field := range priority {
			cost, ok := rls.TechCosts[field]
			if !ok {
				continue
			}
			level := h.TechLevels[field]
			price := cost.BaseCost + cost.GrowthPerLevel*float64(level)
			if h.ResearchPoints[field] < price {
				continue
			}
			h.ResearchPoints[field] -= price
			if h.TechLevels == nil {
				h.TechLevels = make(map[entity.TechField]int)
			}
			h.TechLevels[field] = level + 1
			changed = true
			sink.Emit(events.Event{Kind: events.KindResearchLevelGained, House: id, Description: "research level gained: " + string(field)})
		}
		if changed {
			w.Houses.Update(id, h)
		}
	}
}

// cleanupAndAdvance implements step 8: remove destroyed entities (the
// store never holds zombie entries, so this is a Store.Remove no-op
// sweep in practice), rebuild indices, increment the turn counter. The
// turn counter itself lives on the persistence layer's games row, not on
// the World, so this only rebuilds indices.
func cleanupAndAdvance(w *entity.World, turn int) {
	w.RebuildIndices()
}
