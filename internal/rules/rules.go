// Package rules implements the immutable rules bundle of spec section 4.2:
// combat tables, economy coefficients, tech costs, espionage effects, and
// capacity formulas, identified by a config_hash propagated to every
// outbound delta. The engine reads but never writes a Rules value.
package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/greenm01/ec4x/internal/codec"
	"github.com/greenm01/ec4x/internal/entity"
)

// CombatEffectivenessRoll describes the multiplier distribution applied
// to total attack strength each combat round (spec section 4.3.1 step 1).
type CombatEffectivenessRoll struct {
	Min, Max float64
}

// DetectionEntry is one row of the raider/scout detection table (spec
// section 4.3.1 step 1 and section 9's raider-cloaking open question:
// this table, not surrounding prose, is authoritative on surprise vs.
// ambush).
type DetectionEntry struct {
	ObserverElectronics int
	TargetElectronics   int
	DetectChance        float64
	SurpriseBonus       float64 // applied when the cloaked side is moving
	AmbushBonus         float64 // applied when the cloaked side is defending
}

// EconomyCoefficients drives Income-phase production math (spec section
// 4.3.2 step 3).
type EconomyCoefficients struct {
	BaseProductionByClass map[entity.PlanetClass]float64
	ResourceRatingWeight  float64
	BlockadePenalty       float64 // fraction of production removed, e.g. 0.60
	MaintenancePerShip     map[entity.ShipClass]int64
	MaintenancePerFacility map[entity.FacilityKind]int64
}

// TechCost is the accumulated-research-points price of the next level in
// one field.
type TechCost struct {
	BaseCost      float64
	GrowthPerLevel float64
}

// EspionageEffect parameterizes one ongoing effect applied by Income
// phase step 1 (research reduction, net-colony-value reduction, tax
// reduction, facility-crippling, intel blocks/corruption).
type EspionageEffect struct {
	Kind     string
	Duration int
	Magnitude float64
}

// The five ongoing espionage effect kinds spec section 4.3.2 step 1 names,
// keyed into Rules.Espionage and the names the engine stamps onto
// House.ActiveEffects.
const (
	EffectResearchReduction    = "research_reduction"
	EffectColonyValueReduction = "colony_value_reduction"
	EffectTaxReduction         = "tax_reduction"
	EffectFacilityCrippling    = "facility_crippling"
	EffectIntelCorruption      = "intel_corruption"
)

// CapacityFormulas computes the three capacity ceilings of spec section 3.
type CapacityFormulas struct {
	MapMultiplier      float64
	FighterMultiplier  float64
	PlanetBreakerLimit int // per owned colony
}

// CapitalSquadronCapacity implements
// max(8, floor(Total_House_IU/100) * 2 * map_multiplier).
func (c CapacityFormulas) CapitalSquadronCapacity(totalHouseIU int64) int {
	v := int(float64(totalHouseIU/100) * 2 * c.MapMultiplier)
	if v < 8 {
		return 8
	}
	return v
}

// TotalSquadronCapacity implements max(20, floor(Total_House_IU/50) * map_multiplier).
func (c CapacityFormulas) TotalSquadronCapacity(totalHouseIU int64) int {
	v := int(float64(totalHouseIU/50) * c.MapMultiplier)
	if v < 20 {
		return 20
	}
	return v
}

// FighterCapacityPerColony implements floor(colony_IU/100) * fighter_multiplier.
func (c CapacityFormulas) FighterCapacityPerColony(colonyIU int64) int {
	return int(float64(colonyIU/100) * c.FighterMultiplier)
}

// Rules is the full immutable bundle loaded at game start.
type Rules struct {
	Combat     CombatEffectivenessRoll
	Detection  []DetectionEntry
	Economy    EconomyCoefficients
	TechCosts  map[entity.TechField]TechCost
	Espionage  map[string]EspionageEffect
	Capacity   CapacityFormulas

	// CapitalCommandRatingThreshold: a squadron is "capital" when its
	// flagship's CommandRating is at or above this (glossary: "Capital
	// squadron").
	CapitalCommandRatingThreshold int

	// DefensiveCollapseThreshold/Turns: prestige-based elimination (spec
	// section 4.3.2 step 10). A house whose Prestige has sat strictly
	// below DefensiveCollapseThreshold for DefensiveCollapseTurns
	// consecutive turns is eliminated. Resolves spec section 9's rounding
	// open question: prestige awarded mid-turn is applied (and rounded to
	// the nearest integer, ties rounding up) before this check runs, so a
	// partial award that pushes Prestige back to the threshold in the
	// same turn it would otherwise have tripped the counter prevents
	// collapse. See DESIGN.md for the rationale.
	DefensiveCollapseThreshold int64
	DefensiveCollapseTurns     int

	// VictoryPrestigeThreshold/TurnLimit: spec section 4.3.2 step 11.
	VictoryPrestigeThreshold int64
	TurnLimit                int

	// OverInvestmentThreshold/Penalty: espionage budget prestige penalty
	// (spec section 4.3.2 step 2).
	OverInvestmentThreshold int64
	OverInvestmentPenalty   int64

	// GraceTurns: the two-turn grace period for total-squadron and
	// fighter capacity enforcement (spec section 3).
	GraceTurns int

	// ConfigHash identifies this bundle; computed by Load, never set
	// directly.
	ConfigHash string `bson:"-"`
}

// Default returns a baseline Rules bundle with the numeric floors spec
// section 3/4 names explicitly (capacity formula minimums, the two-turn
// capacity grace period, the three-strikes-adjacent defensive-collapse
// window). Scenario/rules-file authoring (KDL/TOML) is out of scope (spec
// section 9); callers that need a bespoke bundle build one directly and
// pass it to Load instead of calling Default.
func Default() *Rules {
	return &Rules{
		Combat:    CombatEffectivenessRoll{Min: 0.8, Max: 1.2},
		Detection: defaultDetectionTable(),
		Economy: EconomyCoefficients{
			ResourceRatingWeight: 1.0,
			BlockadePenalty:      0.60,
		},
		TechCosts: make(map[entity.TechField]TechCost),
		Espionage: defaultEspionageEffects(),
		Capacity: CapacityFormulas{
			MapMultiplier:     1.0,
			FighterMultiplier: 1.0,
		},
		CapitalCommandRatingThreshold: 5,
		DefensiveCollapseThreshold:    100,
		DefensiveCollapseTurns:        3,
		VictoryPrestigeThreshold:      10000,
		TurnLimit:                     200,
		OverInvestmentThreshold:       1000,
		OverInvestmentPenalty:         50,
		GraceTurns:                    2,
	}
}

// MaxDetectionElectronics is the highest electronics level the default
// detection table carries a row for; callers that derive an electronics
// rating from tech levels plus bonuses must clamp to this before looking
// it up, since RunDetection requires an exact table match.
const MaxDetectionElectronics = 10

// defaultDetectionTable covers every (observer, target) electronics-level
// pair from 0 to MaxDetectionElectronics: the wider the defender's
// electronics edge over the cloaked side, the likelier the detection,
// symmetric around a 50% base chance at parity.
func defaultDetectionTable() []DetectionEntry {
	var out []DetectionEntry
	for oe := 0; oe <= MaxDetectionElectronics; oe++ {
		for te := 0; te <= MaxDetectionElectronics; te++ {
			chance := 0.5 + 0.08*float64(oe-te)
			if chance < 0.05 {
				chance = 0.05
			}
			if chance > 0.95 {
				chance = 0.95
			}
			out = append(out, DetectionEntry{
				ObserverElectronics: oe,
				TargetElectronics:   te,
				DetectChance:        chance,
				SurpriseBonus:       0.10,
				AmbushBonus:         0.15,
			})
		}
	}
	return out
}

// defaultEspionageEffects seeds a usable magnitude/duration for each of
// the five named ongoing effects (spec section 4.3.2 step 1).
func defaultEspionageEffects() map[string]EspionageEffect {
	return map[string]EspionageEffect{
		EffectResearchReduction:    {Kind: EffectResearchReduction, Duration: 3, Magnitude: 0.25},
		EffectColonyValueReduction: {Kind: EffectColonyValueReduction, Duration: 3, Magnitude: 0.20},
		EffectTaxReduction:         {Kind: EffectTaxReduction, Duration: 2, Magnitude: 0.30},
		EffectFacilityCrippling:    {Kind: EffectFacilityCrippling, Duration: 2, Magnitude: 0},
		EffectIntelCorruption:      {Kind: EffectIntelCorruption, Duration: 2, Magnitude: 0},
	}
}

// Load accepts an already-decoded rules bundle (the KDL/TOML loader is out
// of scope; it hands the core a *Rules it built) and stamps ConfigHash as
// a SHA-256 over the bundle's canonical BSON encoding, reusing the same
// codec.Marshal the wire format uses so the hash is stable across
// platforms and process restarts.
func Load(r *Rules) (*Rules, error) {
	cp := *r
	cp.ConfigHash = ""
	enc, err := codec.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("rules: encode for hash: %w", err)
	}
	sum := sha256.Sum256(enc)
	cp.ConfigHash = hex.EncodeToString(sum[:])
	return &cp, nil
}
