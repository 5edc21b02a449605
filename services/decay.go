package services

import (
	"context"
	"time"

	"pokecare/models"

	"go.uber.org/zap"
)

// decayVitals removes min(units*rate, cap) from each vital, where
// units = floor(elapsed / DecayUnit). Fractions are rounded half up before clamping.
func decayVitals(v models.Vitals, elapsed time.Duration, r Rules) models.Vitals {
	units := int(elapsed / r.DecayUnit)
	return models.Vitals{
		Happiness: roundHalfUp(float64(v.Happiness) - r.Decay.Happiness.amount(units)),
		Health:    roundHalfUp(float64(v.Health) - r.Decay.Health.amount(units)),
		Energy:    roundHalfUp(float64(v.Energy) - r.Decay.Energy.amount(units)),
		Hunger:    roundHalfUp(float64(v.Hunger) - r.Decay.Hunger.amount(units)),
	}.Clamp(r.HealthFloor)
}

// decayTick is the scheduled decay pass. A member decays only if at least
// DecayDebounce passed since its last decay or feed; its clock advances only
// when a changed value was actually written.
func (e *TeamEngine) decayTick(ctx context.Context) {
	owner, ok := e.identity.CurrentUser()
	if !ok {
		return
	}
	roster := e.Roster()
	if len(roster) == 0 {
		return
	}

	now := e.clock.Now()
	written := 0
	for _, m := range roster {
		if ctx.Err() != nil {
			return
		}
		e.mu.Lock()
		last, ok := e.lastDecay[m.ID]
		if !ok {
			e.lastDecay[m.ID] = now
			last = now
		}
		e.mu.Unlock()

		elapsed := now.Sub(last)
		if elapsed < e.rules.DecayDebounce {
			continue
		}
		next := decayVitals(m.Vitals, elapsed, e.rules)
		if next == m.Vitals {
			continue
		}

		if err := e.writeThrough(ctx, owner, m.ID, models.MemberPatch{Vitals: &next}, EventDecayed); err != nil {
			e.logger.Warn("[Decay] failed to save decayed stats", zap.String("member_id", m.ID), zap.Error(err))
			e.metrics.decayWritten(false)
			continue
		}
		e.metrics.decayWritten(true)
		e.mu.Lock()
		if _, ok := e.lastDecay[m.ID]; ok {
			e.lastDecay[m.ID] = now
		}
		e.mu.Unlock()
		written++
	}

	if written > 0 {
		e.logger.Debug("[Decay] applied", zap.String("user_id", owner), zap.Int("members", written))
		e.reload(ctx, EventDecayed, "")
	}
}
