// Package indices implements the derived secondary maps referenced by
// spec section 3 and section 4.1: fleets-by-location, colonies-by-owner,
// ships-by-fleet, and friends. They are never authoritative — entity.World
// can always recompute them from scratch by re-scanning its stores, and
// does so once per phase via RebuildIndices.
//
// The package works in raw uint64 keys rather than entity.ID to avoid an
// import cycle (entity imports indices, not the other way around).
package indices

// Indices holds every derived secondary map for one World snapshot.
type Indices struct {
	fleetsByLocation map[uint64]map[uint64]struct{}
	fleetsByOwner    map[uint64]map[uint64]struct{}
	coloniesByOwner  map[uint64]map[uint64]struct{}
	coloniesBySystem map[uint64]map[uint64]struct{}
	squadronsByFleet map[uint64]map[uint64]struct{}
	shipsByFleet     map[uint64]map[uint64]struct{}
	shipsBySquadron  map[uint64]map[uint64]struct{}
	lanesByEndpoint  map[uint64]map[uint64]struct{}
}

// New returns an empty Indices ready to be populated by World.RebuildIndices.
func New() *Indices {
	return &Indices{
		fleetsByLocation: make(map[uint64]map[uint64]struct{}),
		fleetsByOwner:    make(map[uint64]map[uint64]struct{}),
		coloniesByOwner:  make(map[uint64]map[uint64]struct{}),
		coloniesBySystem: make(map[uint64]map[uint64]struct{}),
		squadronsByFleet: make(map[uint64]map[uint64]struct{}),
		shipsByFleet:     make(map[uint64]map[uint64]struct{}),
		shipsBySquadron:  make(map[uint64]map[uint64]struct{}),
		lanesByEndpoint:  make(map[uint64]map[uint64]struct{}),
	}
}

func add(m map[uint64]map[uint64]struct{}, key, val uint64) {
	set, ok := m[key]
	if !ok {
		set = make(map[uint64]struct{})
		m[key] = set
	}
	set[val] = struct{}{}
}

func remove(m map[uint64]map[uint64]struct{}, key, val uint64) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, val)
	if len(set) == 0 {
		delete(m, key)
	}
}

func keys(m map[uint64]map[uint64]struct{}, key uint64) []uint64 {
	set, ok := m[key]
	if !ok {
		return nil
	}
	out := make([]uint64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func (ix *Indices) AddFleetLocation(sys, fleet uint64) { add(ix.fleetsByLocation, sys, fleet) }
func (ix *Indices) AddFleetOwner(owner, fleet uint64)  { add(ix.fleetsByOwner, owner, fleet) }
func (ix *Indices) AddColonyOwner(owner, colony uint64) { add(ix.coloniesByOwner, owner, colony) }
func (ix *Indices) AddColonyBySystem(sys, colony uint64) { add(ix.coloniesBySystem, sys, colony) }
func (ix *Indices) AddSquadronFleet(fleet, squadron uint64) { add(ix.squadronsByFleet, fleet, squadron) }
func (ix *Indices) AddShipFleet(fleet, ship uint64) { add(ix.shipsByFleet, fleet, ship) }
func (ix *Indices) AddShipSquadron(squadron, ship uint64) { add(ix.shipsBySquadron, squadron, ship) }
func (ix *Indices) AddLaneEndpoint(sys, lane uint64) { add(ix.lanesByEndpoint, sys, lane) }

func (ix *Indices) RemoveColonyOwner(owner, colony uint64) { remove(ix.coloniesByOwner, owner, colony) }

func (ix *Indices) RemoveShip(fleet, squadron, ship uint64) {
	remove(ix.shipsByFleet, fleet, ship)
	if squadron != 0 {
		remove(ix.shipsBySquadron, squadron, ship)
	}
}

func (ix *Indices) RemoveSquadron(fleet, squadron uint64) {
	remove(ix.squadronsByFleet, fleet, squadron)
}

func (ix *Indices) RemoveFleet(location, owner, fleet uint64) {
	remove(ix.fleetsByLocation, location, fleet)
	remove(ix.fleetsByOwner, owner, fleet)
}

func (ix *Indices) FleetsAtLocation(sys uint64) []uint64   { return keys(ix.fleetsByLocation, sys) }
func (ix *Indices) FleetsByOwner(owner uint64) []uint64     { return keys(ix.fleetsByOwner, owner) }
func (ix *Indices) ColoniesByOwner(owner uint64) []uint64   { return keys(ix.coloniesByOwner, owner) }
func (ix *Indices) ColoniesBySystem(sys uint64) []uint64    { return keys(ix.coloniesBySystem, sys) }
func (ix *Indices) SquadronsByFleet(fleet uint64) []uint64  { return keys(ix.squadronsByFleet, fleet) }
func (ix *Indices) ShipsByFleet(fleet uint64) []uint64      { return keys(ix.shipsByFleet, fleet) }
func (ix *Indices) ShipsBySquadron(squadron uint64) []uint64 { return keys(ix.shipsBySquadron, squadron) }
func (ix *Indices) LanesAtEndpoint(sys uint64) []uint64     { return keys(ix.lanesByEndpoint, sys) }
