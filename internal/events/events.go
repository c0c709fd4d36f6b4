// Package events defines the event catalog emitted by the turn engine
// (spec section 4.3 throughout) and persisted to the game_events table
// (spec section 4.5).
package events

import "github.com/greenm01/ec4x/internal/entity"

// Kind enumerates every event the engine can emit. Names match the
// verbs used in spec section 4.3 and section 8's scenarios exactly
// (e.g. "BlockadeEstablished", "CapitalShipSeized", "ScoutDetected") so
// the test scenarios can assert on them literally.
type Kind string

const (
	KindBlockadeEstablished   Kind = "BlockadeEstablished"
	KindCapitalShipSeized     Kind = "CapitalShipSeized"
	KindSquadronDisbanded     Kind = "SquadronDisbanded"
	KindFighterSquadronExpired Kind = "FighterSquadronExpired"
	KindPlanetBreakerScrapped Kind = "PlanetBreakerScrapped"
	KindScoutDetected         Kind = "ScoutDetected"
	KindSpyMissionSucceeded   Kind = "SpyMissionSucceeded"
	KindSpyMissionFailed      Kind = "SpyMissionFailed"
	KindScoutSighting         Kind = "ScoutSighting"
	KindColonyEstablished     Kind = "ColonyEstablished"
	KindColonyCaptured        Kind = "ColonyCaptured"
	KindColonyBombarded       Kind = "ColonyBombarded"
	KindCombatResolved        Kind = "CombatResolved"
	KindOrbitalCombatResolved Kind = "OrbitalCombatResolved"
	KindFleetArrived          Kind = "FleetArrived"
	KindFleetDestroyed        Kind = "FleetDestroyed"
	KindFleetMerged           Kind = "FleetMerged"
	KindCommandFailed         Kind = "CommandFailed"
	KindCommandRejected       Kind = "CommandRejected"
	KindHouseEliminated       Kind = "HouseEliminated"
	KindVictory               Kind = "Victory"
	KindGamePhaseChanged      Kind = "GamePhase"
	KindPrestigeAwarded       Kind = "PrestigeAwarded"
	KindResearchLevelGained   Kind = "ResearchLevelGained"
	KindConstructionCompleted Kind = "ConstructionCompleted"
	KindShipCommissioned      Kind = "ShipCommissioned"
	KindSalvageCollected      Kind = "SalvageCollected"
	KindSquadronOverCapacity  Kind = "SquadronOverCapacity"
	KindEspionageEffectApplied Kind = "EspionageEffectApplied"
	KindEspionageEffectExpired Kind = "EspionageEffectExpired"
)

// Event is one row of the queryable game_events table (spec section 4.5):
// (id, game_id, turn, kind, house?, fleet?, system?, description, data_blob).
// The id is assigned by persistence on insert, not here.
type Event struct {
	GameID      string       `bson:"gameId"`
	Turn        int          `bson:"turn"`
	Kind        Kind         `bson:"kind"`
	House       entity.ID    `bson:"house,omitempty"`
	Fleet       entity.ID    `bson:"fleet,omitempty"`
	System      entity.ID    `bson:"system,omitempty"`
	Description string       `bson:"description"`
	// Data is an opaque BSON-encoded payload carrying kind-specific
	// structured detail (e.g. how many squadrons were seized, the
	// treasury amount refunded) beyond what Description summarizes.
	Data []byte `bson:"data,omitempty"`
}

// Sink accumulates events in emission order during one turn resolution;
// every phase function appends to the same Sink so the final slice is in
// the exact order spec section 5 requires ("Events for a given turn are
// emitted in the exact order produced by the phases above").
type Sink struct {
	events []Event
}

// NewSink returns an empty Sink.
func NewSink() *Sink { return &Sink{} }

// Emit appends one event.
func (s *Sink) Emit(e Event) { s.events = append(s.events, e) }

// All returns every event emitted so far, in emission order.
func (s *Sink) All() []Event { return s.events }
