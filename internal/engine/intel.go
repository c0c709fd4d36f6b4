package engine

import (
	"github.com/greenm01/ec4x/internal/codec"
	"github.com/greenm01/ec4x/internal/entity"
)

// intelRank orders quality tiers weakest to strongest (spec section 4.4's
// visual/scan/spy/perfect ladder) so a same-turn weaker source never
// clobbers an already-recorded stronger one.
func intelRank(q entity.IntelQuality) int {
	switch q {
	case entity.IntelVisual:
		return 1
	case entity.IntelScan:
		return 2
	case entity.IntelSpy:
		return 3
	case entity.IntelPerfect:
		return 4
	default:
		return 0
	}
}

// recordIntel upserts one row of observer's intelligence database. A
// report only overwrites an existing same-turn entry if it is at least as
// confident; this lets, e.g., a passive fleet-presence sighting and a
// starbase scan of the same fleet coexist without the weaker one winning
// on iteration order.
func recordIntel(w *entity.World, observer entity.ID, kind entity.Kind, id entity.ID, quality entity.IntelQuality, turn int, snapshot any) {
	h, ok := w.Houses.Get(observer)
	if !ok || observer == 0 {
		return
	}
	key := entity.IntelKey{Kind: kind, ID: id}
	if existing, found := h.IntelDB[key]; found {
		if existing.ObservedTurn == turn && intelRank(existing.Quality) > intelRank(quality) {
			return
		}
	}
	blob, err := codec.Marshal(snapshot)
	if err != nil {
		blob = nil
	}
	if h.IntelDB == nil {
		h.IntelDB = make(map[entity.IntelKey]entity.IntelEntry)
	}
	h.IntelDB[key] = entity.IntelEntry{Quality: quality, ObservedTurn: turn, Snapshot: blob}
	w.Houses.Update(observer, h)
}

// fleetPresenceIntel implements the first of spec section 4.4's five intel
// sources: every house with a fleet at a system observes every other
// house's fleets (and the resident colony, if foreign) present there at
// visual quality.
func fleetPresenceIntel(w *entity.World, turn int) {
	for sysID, fleetIDs := range fleetsBySystem(w) {
		byOwner := groupByOwner(w, fleetIDs)
		if len(byOwner) == 0 {
			continue
		}
		colID, hasColony := w.ColonyAt(sysID)
		var col entity.Colony
		if hasColony {
			col, hasColony = w.Colonies.Get(colID)
		}
		for observer := range byOwner {
			for owner, fids := range byOwner {
				if owner == observer {
					continue
				}
				for _, fid := range fids {
					f, ok := w.Fleets.Get(fid)
					if !ok {
						continue
					}
					recordIntel(w, observer, entity.KindFleet, fid, entity.IntelVisual, turn, f)
				}
			}
			if hasColony && col.Owner != observer {
				recordIntel(w, observer, entity.KindColony, colID, entity.IntelVisual, turn, col)
			}
		}
	}
}

// starbaseSurveillanceIntel implements the second source: a house's
// starbase watches every system adjacent to its own via a jump lane,
// reporting foreign fleets and the colony there at scan quality (better
// than a passing fleet's visual sighting, short of on-site spy fidelity).
func starbaseSurveillanceIntel(w *entity.World, turn int) {
	bySystem := fleetsBySystem(w)
	colonyBySys := colonyBySystem(w)
	for _, fac := range w.Facilities.Iterate(nil) {
		if fac.Kind != entity.FacilityStarbase {
			continue
		}
		col, ok := w.Colonies.Get(fac.ColonyID)
		if !ok {
			continue
		}
		for _, laneID := range w.Index.LanesAtEndpoint(uint64(col.SystemID)) {
			lane, ok := w.Lanes.Get(entity.ID(laneID))
			if !ok {
				continue
			}
			adjacent := lane.A
			if adjacent == col.SystemID {
				adjacent = lane.B
			}
			for _, fid := range bySystem[adjacent] {
				f, ok := w.Fleets.Get(fid)
				if !ok || f.Owner == fac.Owner {
					continue
				}
				recordIntel(w, fac.Owner, entity.KindFleet, fid, entity.IntelScan, turn, f)
			}
			if adjColID, ok := colonyBySys[adjacent]; ok {
				adjCol, ok := w.Colonies.Get(adjColID)
				if ok && adjCol.Owner != fac.Owner {
					recordIntel(w, fac.Owner, entity.KindColony, adjColID, entity.IntelScan, turn, adjCol)
				}
			}
		}
	}
}
