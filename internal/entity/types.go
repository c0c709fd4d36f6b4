package entity

import "time"

// TechField enumerates the five technology research tracks plus the two
// non-combat tracks (economic, science) referenced by spec section 4.3.3
// step 6 ("economic, science, and up to the five technology fields").
type TechField string

const (
	TechEconomic    TechField = "economic"
	TechScience     TechField = "science"
	TechWeapons     TechField = "weapons"
	TechShields     TechField = "shields"
	TechPropulsion  TechField = "propulsion"
	TechElectronics TechField = "electronics"
	TechConstruction TechField = "construction"
)

// IntelQuality tags how an intelligence entry was obtained; shared with
// the fog-of-war projector (see fow.Quality, a type alias of this one) so
// engine and projector never disagree about the ordering of confidence.
type IntelQuality string

const (
	IntelVisual  IntelQuality = "visual"
	IntelScan    IntelQuality = "scan"
	IntelSpy     IntelQuality = "spy"
	IntelPerfect IntelQuality = "perfect"
)

// IntelEntry is one row of a house's intelligence database: what it knows
// about one foreign entity, as of which turn, at what confidence.
type IntelEntry struct {
	Quality      IntelQuality `bson:"quality" json:"quality"`
	ObservedTurn int          `bson:"observedTurn" json:"observedTurn"`
	// Snapshot is an opaque BSON-encoded copy of the observed entity at
	// the quality level recorded above (a "visual" report may carry only
	// presence + class; a "perfect" report carries the full entity).
	Snapshot []byte `bson:"snapshot,omitempty" json:"snapshot,omitempty"`
}

// IntelKey indexes a House's IntelDB by the observed entity.
type IntelKey struct {
	Kind Kind `bson:"kind"`
	ID   ID   `bson:"id"`
}

// House is a player's persistent standing in the game. Once Eliminated
// flips true it never flips back (spec section 3 invariant).
type House struct {
	ID          ID     `bson:"_id"`
	Name        string `bson:"name"`
	PublicKey   []byte `bson:"publicKey"`
	Treasury    int64  `bson:"treasury"`
	Prestige    int64  `bson:"prestige"`
	Eliminated  bool   `bson:"eliminated"`

	// LowPrestigeStreak counts consecutive turns Prestige has sat below
	// rules.DefensiveCollapseThreshold; reset to 0 the instant Prestige
	// recovers above it. Drives defensive-collapse elimination (spec
	// section 4.3.2 step 10).
	LowPrestigeStreak int `bson:"lowPrestigeStreak"`

	TechLevels       map[TechField]int     `bson:"techLevels"`
	ResearchPoints   map[TechField]float64 `bson:"researchPoints"`
	EspionageBudget  int64                 `bson:"espionageBudget"`
	CounterIntelBudget int64               `bson:"counterIntelBudget"`

	// Relations is keyed by the *other* house's id; symmetric updates are
	// the engine's responsibility (see diplomacy.State for the normalized
	// pair-keyed variant this is adapted from).
	Relations map[ID]Relation `bson:"relations"`

	IntelDB map[IntelKey]IntelEntry `bson:"intelDB,omitempty"`

	// ActiveEffects holds ongoing espionage effects landed against this
	// house by a successful hostile Hack/DeepScan/Guild-budget mission
	// (spec section 4.3.2 step 1): research reduction, net-colony-value
	// reduction, tax reduction, facility-crippling, intel corruption.
	ActiveEffects []ActiveEspionageEffect `bson:"activeEffects,omitempty"`

	Version int64 `bson:"version"`
}

// ActiveEspionageEffect is one row of an ongoing espionage effect ticking
// down on the victim house (spec section 4.3.2 step 1). TargetColony is 0
// for a house-wide effect (e.g. research reduction) and set for a
// colony-scoped one (e.g. tax reduction).
type ActiveEspionageEffect struct {
	Kind           string  `bson:"kind"`
	TargetColony   ID      `bson:"targetColony,omitempty"`
	RemainingTurns int     `bson:"remainingTurns"`
	Magnitude      float64 `bson:"magnitude"`
}

// Relation mirrors diplomacy.Relation but scoped to one game rather than
// one map, and carries an expiry the way diplomacy.Entry does.
type Relation struct {
	State RelationState `bson:"state"`
	Until time.Time     `bson:"until,omitempty"`
}

type RelationState string

const (
	RelationUnknown   RelationState = "unknown"
	RelationEnemy     RelationState = "enemy"
	RelationAlly      RelationState = "ally"
	RelationCeasefire RelationState = "ceasefire"
)

// PlanetClass rates a system's colonizability; ResourceRating scales base
// production (spec section 4.3.2 step 3).
type PlanetClass string

const (
	PlanetBarren    PlanetClass = "barren"
	PlanetHostile   PlanetClass = "hostile"
	PlanetMarginal  PlanetClass = "marginal"
	PlanetFertile   PlanetClass = "fertile"
	PlanetGarden    PlanetClass = "garden"
)

// System is a node in the jump-lane graph; static once created at setup.
type System struct {
	ID             ID          `bson:"_id"`
	X, Y           float64     `bson:"x,y"`
	Name           string      `bson:"name"`
	PlanetClass    PlanetClass `bson:"planetClass"`
	ResourceRating int         `bson:"resourceRating"`
	Version        int64       `bson:"version"`
}

// LaneClass governs the travel rules of spec section 4.3.4 step 2.
type LaneClass string

const (
	LaneRestricted LaneClass = "restricted"
	LaneMinor      LaneClass = "minor"
	LaneMajor      LaneClass = "major"
)

// Lane is an edge between two systems; static.
type Lane struct {
	ID    ID        `bson:"_id"`
	A, B  ID        `bson:"a,b"`
	Class LaneClass `bson:"class"`
}

// Improvement is a completed colony upgrade (shield/battery are Facility
// entities instead; improvements here are production-affecting only, e.g.
// a terraforming result or an industrial subsidy).
type Improvement string

// BuildQueueItem is one entry of a colony's construction backlog, feeding
// ConstructionProject entities once started.
type BuildQueueItem struct {
	Target   ProjectTarget `bson:"target"`
	Priority int           `bson:"priority"`
}

// Colony is a populated, owned system.
type Colony struct {
	ID               ID            `bson:"_id"`
	SystemID         ID            `bson:"systemId"`
	Owner            ID            `bson:"owner"`
	PopulationUnits  int64         `bson:"populationUnits"`
	IndustrialUnits  int64         `bson:"industrialUnits"`
	Improvements     []Improvement `bson:"improvements,omitempty"`
	BuildQueue       []BuildQueueItem `bson:"buildQueue,omitempty"`
	TaxRate          float64       `bson:"taxRate"`
	Blockaded        bool          `bson:"blockaded"`
	AssignedGroundUnits []ID       `bson:"assignedGroundUnits,omitempty"`
	Version          int64         `bson:"version"`
}

// FleetStatus is the fleet's standing disposition.
type FleetStatus string

const (
	FleetActive     FleetStatus = "active"
	FleetReserve    FleetStatus = "reserve"
	FleetMothballed FleetStatus = "mothballed"
)

// MissionState tracks progress of a fleet's active command across turns
// (spec section 4.3.1 preamble and section 4.3.4 steps 1/3).
type MissionState string

const (
	MissionIdle      MissionState = "idle"
	MissionTraveling MissionState = "traveling"
	MissionExecuting MissionState = "executing"
)

// CommandKind enumerates the fleet command catalog referenced throughout
// spec section 4.3.
type CommandKind string

const (
	CmdMove          CommandKind = "move"
	CmdHold          CommandKind = "hold"
	CmdPatrol        CommandKind = "patrol"
	CmdSeekHome      CommandKind = "seek_home"
	CmdJoinFleet     CommandKind = "join_fleet"
	CmdRendezvous    CommandKind = "rendezvous"
	CmdReserve       CommandKind = "reserve"
	CmdMothball      CommandKind = "mothball"
	CmdReactivate    CommandKind = "reactivate"
	CmdView          CommandKind = "view"
	CmdBombard       CommandKind = "bombard"
	CmdInvade        CommandKind = "invade"
	CmdBlitz         CommandKind = "blitz"
	CmdColonize      CommandKind = "colonize"
	CmdSalvage       CommandKind = "salvage"
	CmdBlockade      CommandKind = "blockade"
	CmdEspionage     CommandKind = "espionage"
	CmdAutoColonize  CommandKind = "auto_colonize"
	CmdAutoRepair    CommandKind = "auto_repair"
)

// FleetCommand is the payload stored in a fleet's active or standing
// command slot (spec section 4.1's "fleet holds its active command and
// its standing command", preserved as a field per spec section 9).
type FleetCommand struct {
	Kind         CommandKind `bson:"kind"`
	TargetSystem ID          `bson:"targetSystem,omitempty"`
	TargetColony ID          `bson:"targetColony,omitempty"`
	TargetFleet  ID          `bson:"targetFleet,omitempty"`
	IssuedTurn   int         `bson:"issuedTurn"`

	// Standing-command condition fields (only meaningful when this
	// FleetCommand sits in Fleet.StandingCommand): e.g. AutoRepair fires
	// only once N turns have elapsed since the fleet was crippled.
	Condition string `bson:"condition,omitempty"`

	// SpyKind carries the requested espionage mission type for a
	// CmdEspionage command from command submission through to arrival,
	// when the SpyMission row is actually created.
	SpyKind SpyMissionKind `bson:"spyKind,omitempty"`
}

// Fleet groups squadrons under one owner at one location.
type Fleet struct {
	ID                ID             `bson:"_id"`
	Owner             ID             `bson:"owner"`
	Location          ID             `bson:"location"` // system id
	Status            FleetStatus    `bson:"status"`
	RulesOfEngagement int            `bson:"rulesOfEngagement"` // 0-10
	AutoBalance       bool           `bson:"autoBalance"`
	SquadronIDs       []ID           `bson:"squadronIds,omitempty"`
	AuxiliaryShipIDs  []ID           `bson:"auxiliaryShipIds,omitempty"`
	ActiveCommand     *FleetCommand  `bson:"activeCommand,omitempty"`
	StandingCommand   *FleetCommand  `bson:"standingCommand,omitempty"`
	MissionState      MissionState   `bson:"missionState"`
	MissionStartTurn  int            `bson:"missionStartTurn"`
	CrippledSinceTurn int            `bson:"crippledSinceTurn,omitempty"`
	Version           int64          `bson:"version"`
}

// SquadronType distinguishes the three roles spec section 3 names.
type SquadronType string

const (
	SquadronCombat    SquadronType = "combat"
	SquadronExpansion SquadronType = "expansion"
	SquadronAuxiliary SquadronType = "auxiliary"
)

// Squadron groups ships under one flagship within one fleet.
type Squadron struct {
	ID         ID           `bson:"_id"`
	Owner      ID           `bson:"owner"`
	FlagshipID ID           `bson:"flagshipId"`
	MemberIDs  []ID         `bson:"memberIds"`
	Type       SquadronType `bson:"type"`
	ParentFleetID ID        `bson:"parentFleetId"`

	// OverCapacityTurns counts consecutive Income phases this squadron has
	// been identified as excess over its house's total-squadron or
	// per-colony fighter capacity; it is reset to 0 the instant the
	// squadron falls back within the limit. Disbandment only fires once
	// this reaches rules.Rules.GraceTurns, mirroring Fleet.CrippledSinceTurn's
	// counter-then-threshold shape (spec section 3's two-turn grace
	// period).
	OverCapacityTurns int `bson:"overCapacityTurns,omitempty"`

	Version    int64        `bson:"version"`
}

// ShipClass is the ship's design/hull type.
type ShipClass string

const (
	ShipScout     ShipClass = "scout"
	ShipFrigate   ShipClass = "frigate"
	ShipDestroyer ShipClass = "destroyer"
	ShipCruiser   ShipClass = "cruiser"
	ShipBattleship ShipClass = "battleship"
	ShipCarrier   ShipClass = "carrier"
	ShipPlanetBreaker ShipClass = "planet_breaker"
	ShipETAC      ShipClass = "etac" // expansion/colonization ship
	ShipTransport ShipClass = "transport"
)

// CombatState is a ship's damage state.
type CombatState string

const (
	ShipUndamaged CombatState = "undamaged"
	ShipCrippled  CombatState = "crippled"
)

// CargoSlot holds ground units ferried by a transport-capable ship.
type CargoSlot struct {
	GroundUnitIDs []ID `bson:"groundUnitIds,omitempty"`
	Capacity      int  `bson:"capacity"`
}

// Ship is a single hull.
type Ship struct {
	ID            ID                    `bson:"_id"`
	Owner         ID                    `bson:"owner"`
	FleetID       ID                    `bson:"fleetId"`
	SquadronID    ID                    `bson:"squadronId,omitempty"`
	Class         ShipClass             `bson:"class"`
	TechAtBuild   map[TechField]int     `bson:"techAtBuild"`
	CombatState   CombatState           `bson:"combatState"`
	CommandRating int                   `bson:"commandRating"`
	AttackStrength int                  `bson:"attackStrength"`
	Cargo         *CargoSlot            `bson:"cargo,omitempty"`
	Version       int64                 `bson:"version"`
}

// GroundUnitType distinguishes marines (invasion/blitz) from planetary
// batteries (defense only, destroyed to permit Invade).
type GroundUnitType string

const (
	GroundMarine  GroundUnitType = "marine"
	GroundBattery GroundUnitType = "battery"
)

// GroundUnit is a single unit of ground force, located either on a colony
// or aboard a transport ship.
type GroundUnit struct {
	ID          ID             `bson:"_id"`
	Owner       ID             `bson:"owner"`
	Type        GroundUnitType `bson:"type"`
	Location    Ref            `bson:"location"` // Kind is KindColony or KindShip
	CombatState CombatState    `bson:"combatState"`
	Version     int64          `bson:"version"`
}

// FacilityKind enumerates the planetary structures of spec section 3.
type FacilityKind string

const (
	FacilitySpaceport FacilityKind = "spaceport"
	FacilityShipyard  FacilityKind = "shipyard"
	FacilityStarbase  FacilityKind = "starbase"
	FacilityShield    FacilityKind = "shield"
	FacilityBattery   FacilityKind = "battery"
)

// Facility is a colony-attached structure.
type Facility struct {
	ID          ID           `bson:"_id"`
	Owner       ID           `bson:"owner"`
	ColonyID    ID           `bson:"colonyId"`
	Kind        FacilityKind `bson:"kind"`
	CombatState CombatState  `bson:"combatState"`
	Version     int64        `bson:"version"`
}

// ProjectTarget is what a ConstructionProject is building: either a ship
// class, a facility kind, or a ground unit type.
type ProjectTarget struct {
	ShipClass    ShipClass      `bson:"shipClass,omitempty"`
	FacilityKind FacilityKind   `bson:"facilityKind,omitempty"`
	GroundUnit   GroundUnitType `bson:"groundUnit,omitempty"`
}

// IsShip reports whether this target commissions as a ship (including
// auxiliaries), which per spec section 4.3.3 step 2 commissions one
// Command phase later than planetary targets.
func (t ProjectTarget) IsShip() bool {
	return t.ShipClass != ""
}

// ConstructionProject is an in-progress build order.
type ConstructionProject struct {
	ID       ID            `bson:"_id"`
	ColonyID ID            `bson:"colonyId"`
	Target   ProjectTarget `bson:"target"`
	Progress int           `bson:"progress"`
	Cost     int           `bson:"cost"`
	Priority int           `bson:"priority"`
	Version  int64         `bson:"version"`
}

// SpyMissionKind distinguishes fleet-based scouting from a budget-funded
// Space Guild mission, which resolves without a fleet at all (spec
// section 4.3.1 step 6).
type SpyMissionKind string

const (
	SpyScout       SpyMissionKind = "scout"
	SpyDeepScan    SpyMissionKind = "deep_scan"
	SpyHack        SpyMissionKind = "hack"
	SpyGuildBudget SpyMissionKind = "guild_budget"
)

// SpyMission is an active espionage operation.
type SpyMission struct {
	ID          ID             `bson:"_id"`
	Owner       ID             `bson:"owner"`
	FleetID     ID             `bson:"fleetId,omitempty"` // 0 for guild-budget missions
	Kind        SpyMissionKind `bson:"kind"`
	TargetSystem ID            `bson:"targetSystem"`
	StartTurn   int            `bson:"startTurn"`
	ScoutCount  int            `bson:"scoutCount"`
	Version     int64          `bson:"version"`
}
