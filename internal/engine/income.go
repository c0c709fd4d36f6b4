package engine

import (
	"math/rand/v2"
	"sort"

	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/events"
	"github.com/greenm01/ec4x/internal/rules"
)

// runIncome executes spec section 4.3.2's twelve steps. It is adapted
// from the teacher's ships/economy.go production-and-maintenance pass,
// generalized from one stack's economy to the whole house's.
func runIncome(w *entity.World, rls *rules.Rules, sink *events.Sink, rng *rand.Rand, turn int) {
	applyEspionageEffects(w, rls, sink)
	processEspionageBudgets(w, rls, sink, rng, turn)
	colonyProduction := computeBaseProduction(w, rls)
	applyBlockadePenalty(w, rls, colonyProduction)
	applyEspionageProductionEffects(w, colonyProduction)
	deductMaintenance(w, rls, sink)
	executeSalvage(w, sink)
	enforceCapacity(w, rls, sink)
	collectTreasury(w, colonyProduction)
	// step 9, prestige awards: individual phases emit KindPrestigeAwarded
	// as they occur; this pass only needs to apply the accumulated totals,
	// which are folded directly into House.Prestige by the emitting step.
	checkElimination(w, rls, sink, turn)
	checkVictory(w, rls, sink, turn)
	advanceTimers(w)
}

// applyEspionageEffects implements step 1: decrement every active
// effect's remaining-turns counter, apply the non-production modifiers
// directly (research reduction drains accumulated research points,
// facility-crippling marks one of the target colony's facilities
// crippled, intel corruption degrades one entry in the victim's own
// intelligence database), and drop any effect that has expired.
// Colony-value/tax-reduction modifiers are folded into this turn's
// production by applyEspionageProductionEffects instead, since they need
// to run after computeBaseProduction.
func applyEspionageEffects(w *entity.World, rls *rules.Rules, sink *events.Sink) {
	for id, h := range w.Houses.Iterate(nil) {
		if len(h.ActiveEffects) == 0 {
			continue
		}
		remaining := h.ActiveEffects[:0]
		for _, eff := range h.ActiveEffects {
			eff.RemainingTurns--
			if eff.RemainingTurns <= 0 {
				sink.Emit(events.Event{Kind: events.KindEspionageEffectExpired, House: id, Description: "espionage effect expired: " + eff.Kind})
				continue
			}
			switch eff.Kind {
			case rules.EffectResearchReduction:
				for field, pts := range h.ResearchPoints {
					h.ResearchPoints[field] = pts * (1 - eff.Magnitude)
				}
			case rules.EffectFacilityCrippling:
				crippleOneFacility(w, eff.TargetColony)
			case rules.EffectIntelCorruption:
				corruptOneIntelEntry(w, id)
			}
			remaining = append(remaining, eff)
		}
		h.ActiveEffects = remaining
		w.Houses.Update(id, h)
	}
}

// applyEspionageProductionEffects implements the colony-value/tax share of
// step 1, folded into step 3's production figures per spec section
// 4.3.2 step 3 ("apply improvements and active espionage effects").
func applyEspionageProductionEffects(w *entity.World, production map[entity.ID]int64) {
	for _, h := range w.Houses.Iterate(nil) {
		for _, eff := range h.ActiveEffects {
			if eff.TargetColony == 0 {
				continue
			}
			switch eff.Kind {
			case rules.EffectColonyValueReduction, rules.EffectTaxReduction:
				if amt, ok := production[eff.TargetColony]; ok {
					production[eff.TargetColony] = int64(float64(amt) * (1 - eff.Magnitude))
				}
			}
		}
	}
}

func crippleOneFacility(w *entity.World, colonyID entity.ID) {
	for id, fac := range w.Facilities.Iterate(nil) {
		if fac.ColonyID != colonyID || fac.CombatState == entity.ShipCrippled {
			continue
		}
		fac.CombatState = entity.ShipCrippled
		w.Facilities.Update(id, fac)
		return
	}
}

// corruptOneIntelEntry degrades one arbitrary row of the victim's own
// intelligence database down to visual quality and scrubs its snapshot,
// modeling "intel blocks or corruption" as information warfare against
// the house being hacked rather than its attacker.
func corruptOneIntelEntry(w *entity.World, houseID entity.ID) {
	h, ok := w.Houses.Get(houseID)
	if !ok || len(h.IntelDB) == 0 {
		return
	}
	var keys []entity.IntelKey
	for k := range h.IntelDB {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].ID < keys[j].ID
	})
	target := keys[0]
	entry := h.IntelDB[target]
	if entry.Quality == entity.IntelVisual {
		return
	}
	entry.Quality = entity.IntelVisual
	entry.Snapshot = nil
	h.IntelDB[target] = entry
	w.Houses.Update(houseID, h)
}

// processEspionageBudgets implements step 2: apply the over-investment
// prestige penalty, then resolve every pending Space-Guild-budget mission
// (non-fleet, funded straight from House.EspionageBudget) against the same
// detection table fleet-based missions use. Success records intel at spy
// quality (a budget-funded operation never reaches the perfect fidelity of
// scouts physically on-site) and lands a colony-value/tax reduction on the
// target; failure drops the mission without destroying anything, since
// there is no fleet to lose.
func processEspionageBudgets(w *entity.World, rls *rules.Rules, sink *events.Sink, rng *rand.Rand, turn int) {
	for id, h := range w.Houses.Iterate(nil) {
		spend := h.EspionageBudget + h.CounterIntelBudget
		if rls.OverInvestmentThreshold > 0 && spend > rls.OverInvestmentThreshold {
			h.Prestige -= rls.OverInvestmentPenalty
			w.Houses.Update(id, h)
			sink.Emit(events.Event{Kind: events.KindPrestigeAwarded, House: id, Description: "over-investment penalty"})
		}
	}

	for id, m := range w.SpyMissions.Iterate(nil) {
		if m.Kind != entity.SpyGuildBudget {
			continue
		}
		if espionageDetectionRoll(w, rls, rng, m.Owner, m.TargetSystem) {
			w.SpyMissions.Remove(id)
			sink.Emit(events.Event{Kind: events.KindSpyMissionFailed, House: m.Owner, System: m.TargetSystem, Description: "guild budget mission detected"})
			continue
		}
		colID, ok := w.ColonyAt(m.TargetSystem)
		if !ok {
			continue
		}
		col, ok := w.Colonies.Get(colID)
		if !ok {
			continue
		}
		recordIntel(w, m.Owner, entity.KindColony, colID, entity.IntelSpy, turn, col)
		applyEspionageEffect(w, rls, sink, col.Owner, colID, rules.EffectColonyValueReduction)
		applyEspionageEffect(w, rls, sink, col.Owner, colID, rules.EffectTaxReduction)
		sink.Emit(events.Event{Kind: events.KindSpyMissionSucceeded, House: m.Owner, System: m.TargetSystem, Description: "guild budget mission succeeded"})
	}
}

func computeBaseProduction(w *entity.World, rls *rules.Rules) map[entity.ID]int64 {
	out := make(map[entity.ID]int64)
	for id, c := range w.Colonies.Iterate(nil) {
		sys, ok := w.Systems.Get(c.SystemID)
		if !ok {
			continue
		}
		base := rls.Economy.BaseProductionByClass[sys.PlanetClass]
		prod := base + float64(sys.ResourceRating)*rls.Economy.ResourceRatingWeight
		out[id] = int64(prod * c.TaxRate * float64(c.IndustrialUnits) / 100)
	}
	return out
}

func applyBlockadePenalty(w *entity.World, rls *rules.Rules, production map[entity.ID]int64) {
	for id, c := range w.Colonies.Iterate(nil) {
		if c.Blockaded {
			production[id] = int64(float64(production[id]) * (1 - rls.Economy.BlockadePenalty))
		}
	}
}

func deductMaintenance(w *entity.World, rls *rules.Rules, sink *events.Sink) {
	totals := make(map[entity.ID]int64)
	for _, sh := range w.Ships.Iterate(nil) {
		totals[sh.Owner] += rls.Economy.MaintenancePerShip[sh.Class]
	}
	for _, fac := range w.Facilities.Iterate(nil) {
		totals[fac.Owner] += rls.Economy.MaintenancePerFacility[fac.Kind]
	}
	for houseID, amount := range totals {
		h, ok := w.Houses.Get(houseID)
		if !ok {
			continue
		}
		h.Treasury -= amount
		w.Houses.Update(houseID, h)
	}
}

// executeSalvage runs Salvage commands for fleets that survived Conflict
// and sit at a friendly colony, paying a fixed salvageYield into the
// owner's treasury. Whether any debris or combat damage is present at the
// system is not checked.
func executeSalvage(w *entity.World, sink *events.Sink) {
	for id, f := range w.Fleets.Iterate(nil) {
		if f.ActiveCommand == nil || f.ActiveCommand.Kind != entity.CmdSalvage {
			continue
		}
		colID, ok := w.ColonyAt(f.Location)
		if !ok {
			continue
		}
		col, ok := w.Colonies.Get(colID)
		if !ok || col.Owner != f.Owner {
			continue
		}
		h, ok := w.Houses.Get(f.Owner)
		if !ok {
			continue
		}
		const salvageYield = 50
		h.Treasury += salvageYield
		w.Houses.Update(f.Owner, h)
		sink.Emit(events.Event{Kind: events.KindSalvageCollected, House: f.Owner, Fleet: id, System: f.Location, Description: "salvage collected"})
	}
}

// enforceCapacity implements step 7's four ceilings.
func enforceCapacity(w *entity.World, rls *rules.Rules, sink *events.Sink) {
	totalIU := make(map[entity.ID]int64)
	for _, c := range w.Colonies.Iterate(nil) {
		totalIU[c.Owner] += c.IndustrialUnits
	}

	for houseID := range totalIU {
		enforceCapitalCapacity(w, rls, sink, houseID, totalIU[houseID])
		enforceTotalSquadronCapacity(w, rls, sink, houseID, totalIU[houseID])
	}
	for colID, c := range w.Colonies.Iterate(nil) {
		enforceFighterCapacity(w, rls, sink, colID, c)
	}
	enforcePlanetBreakerLimit(w, rls, sink)
}

func houseSquadrons(w *entity.World, houseID entity.ID, capitalOnly bool, rls *rules.Rules) []entity.ID {
	var out []entity.ID
	for id, sq := range w.Squadrons.Iterate(nil) {
		if sq.Owner != houseID || sq.Type != entity.SquadronCombat {
			continue
		}
		if capitalOnly {
			flag, ok := w.Ships.Get(sq.FlagshipID)
			if !ok || flag.CommandRating < rls.CapitalCommandRatingThreshold {
				continue
			}
		}
		out = append(out, id)
	}
	return out
}

func squadronAttackTotal(w *entity.World, squadronID entity.ID) int {
	sq, ok := w.Squadrons.Get(squadronID)
	if !ok {
		return 0
	}
	total := 0
	for _, shID := range sq.MemberIDs {
		sh, ok := w.Ships.Get(shID)
		if !ok {
			continue
		}
		total += sh.AttackStrength
	}
	return total
}

func enforceCapitalCapacity(w *entity.World, rls *rules.Rules, sink *events.Sink, houseID entity.ID, totalIU int64) {
	limit := rls.Capacity.CapitalSquadronCapacity(totalIU)
	squadrons := houseSquadrons(w, houseID, true, rls)
	if len(squadrons) <= limit {
		return
	}
	sort.Slice(squadrons, func(i, j int) bool {
		ci, cj := squadronCrippleCount(w, squadrons[i]), squadronCrippleCount(w, squadrons[j])
		if ci != cj {
			return ci > cj
		}
		return squadronAttackTotal(w, squadrons[i]) < squadronAttackTotal(w, squadrons[j])
	})
	excess := squadrons[:len(squadrons)-limit]
	for _, sqID := range excess {
		seizeSquadron(w, sink, houseID, sqID)
	}
}

func squadronCrippleCount(w *entity.World, squadronID entity.ID) int {
	sq, ok := w.Squadrons.Get(squadronID)
	if !ok {
		return 0
	}
	n := 0
	for _, shID := range sq.MemberIDs {
		sh, ok := w.Ships.Get(shID)
		if ok && sh.CombatState == entity.ShipCrippled {
			n++
		}
	}
	return n
}

// seizeSquadron pays the owner 50% of the squadron's attack strength as a
// stand-in for original production cost (Ship carries no build-cost
// field to refund against exactly) before destroying its ships.
func seizeSquadron(w *entity.World, sink *events.Sink, houseID, squadronID entity.ID) {
	refund := int64(squadronAttackTotal(w, squadronID)) / 2
	sq, ok := w.Squadrons.Get(squadronID)
	if !ok {
		return
	}
	if h, ok := w.Houses.Get(houseID); ok {
		h.Treasury += refund
		w.Houses.Update(houseID, h)
	}
	for _, shID := range append([]entity.ID{}, sq.MemberIDs...) {
		w.DestroyShip(shID)
	}
	sink.Emit(events.Event{Kind: events.KindCapitalShipSeized, House: houseID, Description: "excess capital squadron seized"})
}

// resetOverCapacityCounters clears the grace counter of every squadron
// that is no longer identified as excess, so a squadron that drops back
// under the limit (a loss elsewhere, a capacity increase) doesn't carry a
// stale count into a future breach.
func resetOverCapacityCounters(w *entity.World, squadronIDs []entity.ID) {
	for _, sqID := range squadronIDs {
		sq, ok := w.Squadrons.Get(sqID)
		if !ok || sq.OverCapacityTurns == 0 {
			continue
		}
		sq.OverCapacityTurns = 0
		w.Squadrons.Update(sqID, sq)
	}
}

func enforceTotalSquadronCapacity(w *entity.World, rls *rules.Rules, sink *events.Sink, houseID entity.ID, totalIU int64) {
	limit := rls.Capacity.TotalSquadronCapacity(totalIU)
	squadrons := houseSquadrons(w, houseID, false, rls)
	if len(squadrons) <= limit {
		resetOverCapacityCounters(w, squadrons)
		return
	}
	sort.Slice(squadrons, func(i, j int) bool {
		return squadronAttackTotal(w, squadrons[i]) < squadronAttackTotal(w, squadrons[j])
	})
	excess := squadrons[:len(squadrons)-limit]
	resetOverCapacityCounters(w, squadrons[len(squadrons)-limit:])
	for _, sqID := range excess {
		sq, ok := w.Squadrons.Get(sqID)
		if !ok {
			continue
		}
		sq.OverCapacityTurns++
		if sq.OverCapacityTurns < rls.GraceTurns {
			w.Squadrons.Update(sqID, sq)
			sink.Emit(events.Event{Kind: events.KindSquadronOverCapacity, House: houseID, Description: "squadron over total capacity, grace period running"})
			continue
		}
		disbandSquadron(w, sink, houseID, sqID)
	}
}

func disbandSquadron(w *entity.World, sink *events.Sink, houseID, squadronID entity.ID) {
	sq, ok := w.Squadrons.Get(squadronID)
	if !ok {
		return
	}
	for _, shID := range append([]entity.ID{}, sq.MemberIDs...) {
		w.DestroyShip(shID)
	}
	sink.Emit(events.Event{Kind: events.KindSquadronDisbanded, House: houseID, Description: "squadron auto-disbanded over capacity"})
}

func enforceFighterCapacity(w *entity.World, rls *rules.Rules, sink *events.Sink, colID entity.ID, c entity.Colony) {
	limit := rls.Capacity.FighterCapacityPerColony(c.IndustrialUnits)
	var fighterSquadrons []entity.ID
	for id, sq := range w.Squadrons.Iterate(nil) {
		if sq.Owner == c.Owner && sq.Type == entity.SquadronCombat {
			fighterSquadrons = append(fighterSquadrons, id)
		}
	}
	if len(fighterSquadrons) <= limit {
		resetOverCapacityCounters(w, fighterSquadrons)
		return
	}
	sort.Slice(fighterSquadrons, func(i, j int) bool { return fighterSquadrons[i] < fighterSquadrons[j] })
	excess := fighterSquadrons[:len(fighterSquadrons)-limit]
	resetOverCapacityCounters(w, fighterSquadrons[len(fighterSquadrons)-limit:])
	for _, sqID := range excess {
		sq, ok := w.Squadrons.Get(sqID)
		if !ok {
			continue
		}
		sq.OverCapacityTurns++
		if sq.OverCapacityTurns < rls.GraceTurns {
			w.Squadrons.Update(sqID, sq)
			sink.Emit(events.Event{Kind: events.KindSquadronOverCapacity, House: c.Owner, System: c.SystemID, Description: "fighter squadron over colony capacity, grace period running"})
			continue
		}
		sink.Emit(events.Event{Kind: events.KindFighterSquadronExpired, House: c.Owner, System: c.SystemID, Description: "fighter squadron expired over colony capacity"})
		disbandSquadron(w, sink, c.Owner, sqID)
	}
}

func enforcePlanetBreakerLimit(w *entity.World, rls *rules.Rules, sink *events.Sink) {
	ownedColonies := make(map[entity.ID]int)
	for _, c := range w.Colonies.Iterate(nil) {
		ownedColonies[c.Owner]++
	}
	breakers := make(map[entity.ID][]entity.ID)
	for id, sh := range w.Ships.Iterate(nil) {
		if sh.Class == entity.ShipPlanetBreaker {
			breakers[sh.Owner] = append(breakers[sh.Owner], id)
		}
	}
	for houseID, ships := range breakers {
		limit := ownedColonies[houseID] * rls.Capacity.PlanetBreakerLimit
		if len(ships) <= limit {
			continue
		}
		sort.Slice(ships, func(i, j int) bool { return ships[i] < ships[j] })
		for _, shID := range ships[limit:] {
			w.DestroyShip(shID)
			sink.Emit(events.Event{Kind: events.KindPlanetBreakerScrapped, House: houseID, Description: "planet breaker scrapped over limit"})
		}
	}
}

func collectTreasury(w *entity.World, production map[entity.ID]int64) {
	for colID, amount := range production {
		col, ok := w.Colonies.Get(colID)
		if !ok {
			continue
		}
		h, ok := w.Houses.Get(col.Owner)
		if !ok {
			continue
		}
		h.Treasury += amount
		w.Houses.Update(col.Owner, h)
	}
}

func checkElimination(w *entity.World, rls *rules.Rules, sink *events.Sink, turn int) {
	for id, h := range w.Houses.Iterate(nil) {
		if h.Eliminated {
			continue
		}
		colonies := w.Index.ColoniesByOwner(uint64(id))
		marinesAboard := hasMarinesAboardTransport(w, id)
		if len(colonies) == 0 && !marinesAboard {
			h.Eliminated = true
			w.Houses.Update(id, h)
			sink.Emit(events.Event{Kind: events.KindHouseEliminated, House: id, Description: "no colonies or marines remain"})
			continue
		}
		if h.Prestige < rls.DefensiveCollapseThreshold {
			h.LowPrestigeStreak++
		} else {
			h.LowPrestigeStreak = 0
		}
		if h.LowPrestigeStreak >= rls.DefensiveCollapseTurns {
			h.Eliminated = true
			w.Houses.Update(id, h)
			sink.Emit(events.Event{Kind: events.KindHouseEliminated, House: id, Description: "defensive collapse"})
			continue
		}
		w.Houses.Update(id, h)
	}
}

func hasMarinesAboardTransport(w *entity.World, houseID entity.ID) bool {
	for _, g := range w.GroundUnits.Iterate(nil) {
		if g.Owner == houseID && g.Type == entity.GroundMarine && g.Location.Kind == entity.KindShip {
			return true
		}
	}
	return false
}

func checkVictory(w *entity.World, rls *rules.Rules, sink *events.Sink, turn int) {
	var alive []entity.ID
	for id, h := range w.Houses.Iterate(nil) {
		if !h.Eliminated {
			alive = append(alive, id)
		}
	}
	if len(alive) == 1 {
		sink.Emit(events.Event{Kind: events.KindVictory, House: alive[0], Description: "sole surviving house"})
		return
	}
	for _, id := range alive {
		h, _ := w.Houses.Get(id)
		if h.Prestige >= rls.VictoryPrestigeThreshold {
			sink.Emit(events.Event{Kind: events.KindVictory, House: id, Description: "prestige threshold reached"})
			return
		}
	}
	if rls.TurnLimit > 0 && turn >= rls.TurnLimit {
		var best entity.ID
		bestPrestige := int64(-1)
		for _, id := range alive {
			h, _ := w.Houses.Get(id)
			if h.Prestige > bestPrestige {
				bestPrestige = h.Prestige
				best = id
			}
		}
		if bestPrestige >= 0 {
			sink.Emit(events.Event{Kind: events.KindVictory, House: best, Description: "turn limit reached, highest prestige"})
		}
	}
}

// advanceTimers is a no-op: every counter this phase owns already
// advances where it's checked rather than in a separate sweep —
// LowPrestigeStreak in checkElimination, espionage effect durations in
// applyEspionageEffects, and squadron grace counters in
// enforceTotalSquadronCapacity/enforceFighterCapacity.
func advanceTimers(w *entity.World) {
}
