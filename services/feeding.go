package services

import (
	"context"
	"fmt"

	"pokecare/models"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// StatSnapshot is a member's mutable counters at one point in a feed.
type StatSnapshot struct {
	models.Vitals
	ActivityPoints int `json:"activity_points"`
	TotalActions   int `json:"total_actions"`
}

// StatChanges are the per-attribute deltas of a feed, for UI animation.
type StatChanges struct {
	models.Vitals
	ActivityPoints int `json:"activity_points"`
}

type FeedResult struct {
	Success     bool         `json:"success"`
	Evolved     bool         `json:"evolved"`
	MegaEvolved bool         `json:"mega_evolved"`
	OldStats    StatSnapshot `json:"old_stats"`
	NewStats    StatSnapshot `json:"new_stats"`
	StatChanges StatChanges  `json:"stat_changes"`
}

func statsOf(m models.TeamMember) StatSnapshot {
	return StatSnapshot{Vitals: m.Vitals, ActivityPoints: m.ActivityPoints, TotalActions: m.TotalActions}
}

func applyFood(before StatSnapshot, effect FoodEffect, r Rules) StatSnapshot {
	vitals := models.Vitals{
		Happiness: before.Happiness + effect.Happiness,
		Health:    before.Health + effect.Health,
		Energy:    before.Energy + effect.Energy,
		Hunger:    before.Hunger + effect.Hunger,
	}.Clamp(r.HealthFloor)
	return StatSnapshot{
		Vitals:         vitals,
		ActivityPoints: before.ActivityPoints + effect.ActivityPoints,
		TotalActions:   before.TotalActions + 1,
	}
}

// Feed applies a food to a member, writes it through and evaluates evolution
// and mega evolution against the member as it was before the feed.
// CanFeed is advisory: Feed does not refuse a member that is already satisfied.
func (e *TeamEngine) Feed(ctx context.Context, memberID string, food FoodKind) FeedResult {
	member, ok := e.Member(memberID)
	if !ok {
		return FeedResult{}
	}
	effect, ok := e.rules.Food[food]
	if !ok {
		e.logger.Warn("[Feed] unknown food", zap.String("food", string(food)))
		return FeedResult{}
	}
	owner, ok := e.identity.CurrentUser()
	if !ok {
		return FeedResult{}
	}
	if !e.tableReady(ctx, "feed") {
		return FeedResult{}
	}

	before := statsOf(member.TeamMember)
	after := applyFood(before, effect, e.rules)
	patch := models.MemberPatch{
		Vitals:         &after.Vitals,
		ActivityPoints: &after.ActivityPoints,
		TotalActions:   &after.TotalActions,
	}
	if err := e.writeThrough(ctx, owner, memberID, patch, EventFed); err != nil {
		e.logger.Error("[Feed] failed to save stats", zap.String("member_id", memberID),
			zap.String("food", string(food)), zap.Error(err))
		return FeedResult{}
	}
	e.touchDecay(memberID)
	e.metrics.fed(food)

	res := FeedResult{
		Success:  true,
		OldStats: before,
		NewStats: after,
		StatChanges: StatChanges{
			Vitals:         after.Vitals.Sub(before.Vitals),
			ActivityPoints: effect.ActivityPoints,
		},
	}

	if next := e.evolutionCandidate(ctx, member.TeamMember, after); next != nil {
		res.Evolved = e.evolve(ctx, owner, member.TeamMember, next)
	}
	if e.canMegaEvolve(member.TeamMember, after) {
		res.MegaEvolved = e.megaEvolve(ctx, owner, memberID)
	}

	e.reload(ctx, EventFed, memberID)
	return res
}

// CanFeed reports whether a food would still do the member some good.
func (e *TeamEngine) CanFeed(memberID string, food FoodKind) bool {
	m, ok := e.Member(memberID)
	if !ok {
		return false
	}
	t := e.rules.SatisfiedThreshold
	switch food {
	case FoodBerry:
		return m.Hunger < t
	case FoodPotion:
		return m.Health < t || m.Energy < t
	case FoodCandy:
		return m.Happiness < t
	default:
		return false
	}
}

var titleCase = cases.Title(language.English)

// FeedingMessage describes how the member would take a food.
func (e *TeamEngine) FeedingMessage(memberID string, food FoodKind) string {
	m, ok := e.Member(memberID)
	if !ok {
		return "Pokemon not found"
	}
	name := titleCase.String(m.PokemonName)
	t := e.rules.SatisfiedThreshold

	switch food {
	case FoodBerry:
		if m.Hunger >= t {
			return fmt.Sprintf("%s is completely satisfied! Their hunger is at %d%% - they don't need berries right now. 🍓", name, m.Hunger)
		}
		return fmt.Sprintf("%s would love a berry! Their hunger is at %d%%.", name, m.Hunger)
	case FoodPotion:
		switch {
		case m.Health >= t && m.Energy >= t:
			return fmt.Sprintf("%s is in perfect condition! Health: %d%%, Energy: %d%% - no potion needed! 🧪", name, m.Health, m.Energy)
		case m.Health < t && m.Energy >= t:
			return fmt.Sprintf("%s could use healing! Health: %d%%, but energy is good at %d%%.", name, m.Health, m.Energy)
		case m.Health >= t && m.Energy < t:
			return fmt.Sprintf("%s needs energy! Energy: %d%%, but health is good at %d%%.", name, m.Energy, m.Health)
		default:
			return fmt.Sprintf("%s needs both healing and energy! Health: %d%%, Energy: %d%%.", name, m.Health, m.Energy)
		}
	case FoodCandy:
		if m.Happiness >= t {
			return fmt.Sprintf("%s is overjoyed! Their happiness is at %d%% - they're too happy for more candy right now! 🍬", name, m.Happiness)
		}
		return fmt.Sprintf("%s would be thrilled with candy! Their happiness is at %d%%.", name, m.Happiness)
	default:
		return "Unknown food type"
	}
}

// evolutionCandidate returns the next chain link when the feed pushed the
// member over its activity requirement and a successor exists.
func (e *TeamEngine) evolutionCandidate(ctx context.Context, member models.TeamMember, after StatSnapshot) *models.ChainLink {
	if after.ActivityPoints < e.rules.RequiredPoints(member.PokemonID) {
		return nil
	}
	chain, err := e.catalog.EvolutionChain(ctx, member.PokemonID)
	if err != nil || chain == nil {
		e.logger.Debug("[Evolve] no evolution chain", zap.Int("species_id", member.PokemonID), zap.Error(err))
		return nil
	}
	return chain.Next(member.Species().SpeciesName())
}

// evolve swaps the species and resets activity points in a single update.
func (e *TeamEngine) evolve(ctx context.Context, owner string, member models.TeamMember, next *models.ChainLink) bool {
	successor, err := e.catalog.SpeciesByID(ctx, next.Species.ID())
	if err != nil || successor == nil {
		e.logger.Error("[Evolve] successor lookup failed", zap.String("member_id", member.ID),
			zap.String("successor", next.Species.Name), zap.Error(err))
		return false
	}

	reset := 0
	patch := models.MemberPatch{Species: successor, ActivityPoints: &reset}
	if err := e.writeThrough(ctx, owner, member.ID, patch, EventEvolved); err != nil {
		e.logger.Error("[Evolve] failed to save evolution", zap.String("member_id", member.ID), zap.Error(err))
		return false
	}
	e.logger.Info("✨ [Evolve] creature evolved", zap.String("member_id", member.ID),
		zap.String("from", member.PokemonName), zap.String("to", successor.Name))
	e.metrics.evolved()
	return true
}

func (e *TeamEngine) canMegaEvolve(member models.TeamMember, after StatSnapshot) bool {
	if member.IsMegaEvolved || !e.rules.IsMegaCapable(member.PokemonID) {
		return false
	}
	return after.Happiness >= e.rules.MegaHappiness && after.TotalActions >= e.rules.MegaActions
}

func (e *TeamEngine) megaEvolve(ctx context.Context, owner, memberID string) bool {
	if err := e.writeThrough(ctx, owner, memberID, models.MemberPatch{MegaEvolved: true}, EventMegaEvolved); err != nil {
		e.logger.Error("[Evolve] failed to save mega evolution", zap.String("member_id", memberID), zap.Error(err))
		return false
	}
	e.logger.Info("💥 [Evolve] creature mega evolved", zap.String("member_id", memberID))
	e.metrics.megaEvolved()
	return true
}
