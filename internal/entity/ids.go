// Package entity implements the process-owned collection of typed entity
// managers described by the data model: houses, systems, lanes, colonies,
// fleets, squadrons, ships, ground units, facilities, construction
// projects, and active spy missions. Every entity carries a stable
// numeric id assigned on creation; relationships between entities are
// expressed by id only, never by a live pointer.
package entity

import "fmt"

// ID is a stable numeric identifier assigned by a Store on insert. Zero is
// never a valid id; it is reserved to mean "absent" in optional reference
// fields (e.g. Fleet.ActiveCommand.TargetSystem when a command has no
// system target).
type ID uint64

// String renders an ID the way the teacher renders ObjectIDs: short,
// log-friendly, never empty.
func (id ID) String() string {
	return fmt.Sprintf("#%d", uint64(id))
}

// Kind tags which entity manager a loose reference belongs to, used by
// the intelligence database (House.IntelDB) and by the fog-of-war diff,
// both of which need to key on (Kind, ID) pairs that span managers.
type Kind string

const (
	KindHouse       Kind = "house"
	KindSystem      Kind = "system"
	KindLane        Kind = "lane"
	KindColony      Kind = "colony"
	KindFleet       Kind = "fleet"
	KindSquadron    Kind = "squadron"
	KindShip        Kind = "ship"
	KindGroundUnit  Kind = "ground_unit"
	KindFacility    Kind = "facility"
	KindProject     Kind = "project"
	KindSpyMission  Kind = "spy_mission"
)

// Ref is a typed cross-manager reference, e.g. a ground unit's location
// when it rides a transport ship rather than sitting on a colony.
type Ref struct {
	Kind Kind `bson:"kind"`
	ID   ID   `bson:"id"`
}
