package tracking

import (
	"math"

	"github.com/ricochet-gg/ricochet/internal/core/anticheat"
	"github.com/ricochet-gg/ricochet/internal/core/geometry"
	"github.com/ricochet-gg/ricochet/internal/core/observability/log"
)

const (
	// maxExtrapolationConfidence keeps extrapolated rewinds strictly below
	// the confidence an interpolated rewind can reach.
	maxExtrapolationConfidence = 0.7
	// fallbackConfidence applies when only a later sample exists.
	fallbackConfidence = 0.2
	// lowConfidenceThreshold marks results worth an advisory flag.
	lowConfidenceThreshold = 0.3
)

// Compensate rewinds an entity to targetTime and returns where it was.
// Requests outside [now-MaxCompensationWindow, now] are rejected, never
// clamped. A flagged entity fails closed with only PLAYER_FLAGGED set.
func (s *Store) Compensate(entityID string, targetTime float64) CompensationResult {
	s.compensations.Add(1)

	serverNow := s.now()
	result := CompensationResult{LeadTime: serverNow - targetTime}

	state, tracked := s.lockExisting(entityID)
	if tracked {
		defer state.mu.Unlock()

		if !state.valid {
			result.Flags.Add(anticheat.FlagPlayerFlagged)
			return result
		}
		return s.compensateLocked(entityID, state, targetTime, serverNow, result)
	}

	// Untracked entities still get the temporal verdicts so callers can
	// distinguish a bad timestamp from a merely unknown entity.
	if result.LeadTime < 0 {
		result.Flags.Add(anticheat.FlagFutureTimestamp)
	}
	if result.LeadTime > s.cfg.MaxCompensationWindow {
		result.Flags.Add(anticheat.FlagCompensationWindowExceeded)
	}
	result.Flags.Add(anticheat.FlagNoHistory)
	return result
}

func (s *Store) compensateLocked(entityID string, state *entityState, targetTime, serverNow float64, result CompensationResult) CompensationResult {
	if result.LeadTime < 0 {
		result.Flags.Add(anticheat.FlagFutureTimestamp)
	}
	if result.LeadTime > s.cfg.MaxCompensationWindow {
		result.Flags.Add(anticheat.FlagCompensationWindowExceeded)
	}
	if state.samples.Len() == 0 {
		result.Flags.Add(anticheat.FlagNoHistory)
	}
	if !result.Flags.Empty() {
		return result
	}

	before, after, hasBefore, hasAfter := bracket(state, targetTime)

	switch {
	case hasBefore && hasAfter:
		s.interpolate(&result, before, after, targetTime)
	case hasBefore:
		s.extrapolate(&result, before, targetTime)
	default:
		// Only newer samples exist: the oldest one is the best available
		// answer, at a confidence that reflects the guess.
		result.Position = after.Position
		result.Velocity = after.Velocity
		result.Valid = true
		result.Confidence = fallbackConfidence
	}

	if result.Confidence < lowConfidenceThreshold {
		result.Flags.Add(anticheat.FlagLowConfidenceRewind)
	}
	s.sanityCheck(entityID, &result)
	return result
}

// bracket finds the samples on either side of targetTime, walking from the
// most recent sample backward and comparing latency-adjusted timestamps.
func bracket(state *entityState, targetTime float64) (before, after Sample, hasBefore, hasAfter bool) {
	for i := state.samples.Len() - 1; i >= 0; i-- {
		sample := state.samples.At(i)
		if sample.effectiveTime() <= targetTime {
			before = sample
			hasBefore = true
			break
		}
		after = sample
		hasAfter = true
	}
	return before, after, hasBefore, hasAfter
}

func (s *Store) interpolate(result *CompensationResult, before, after Sample, targetTime float64) {
	t0 := before.effectiveTime()
	t1 := after.effectiveTime()

	t := 0.0
	if t1 > t0 {
		t = geometry.Clamp01((targetTime - t0) / (t1 - t0))
	}
	result.Position = geometry.Lerp(before.Position, after.Position, t)
	result.Velocity = geometry.Lerp(before.Velocity, after.Velocity, t)
	result.Valid = true

	// Confidence peaks midway between samples and degrades as the spatial
	// gap between them grows.
	base := 1.0 - math.Abs(t-0.5)
	gap := after.Position.Sub(before.Position).Len()
	result.Confidence = base * (s.cfg.InterpolationGapScale / (s.cfg.InterpolationGapScale + gap))
}

func (s *Store) extrapolate(result *CompensationResult, last Sample, targetTime float64) {
	dt := targetTime - last.effectiveTime()
	result.Position = last.Position.Add(last.Velocity.Mul(dt))
	result.Velocity = last.Velocity
	result.Valid = true

	decay := 1.0 - geometry.Clamp01(dt/s.cfg.ExtrapolationLimit)
	result.Confidence = maxExtrapolationConfidence * decay
}

// sanityCheck invalidates results that carry non-finite or out-of-world
// coordinates instead of letting them propagate into hit detection.
func (s *Store) sanityCheck(entityID string, result *CompensationResult) {
	if !result.Valid {
		return
	}
	ok := geometry.Finite(result.Position) && geometry.Finite(result.Velocity)
	if ok {
		for i := 0; i < 3; i++ {
			if math.Abs(result.Position[i]) > s.cfg.MaxWorldCoordinate {
				ok = false
				break
			}
		}
	}
	if !ok {
		result.Valid = false
		result.Confidence = 0
		result.Flags.Add(anticheat.FlagNumericalInstability)
		s.logger.Error("compensation produced unstable coordinates",
			log.String("entity_id", entityID),
			log.Float64("lead_time", result.LeadTime),
		)
	}
}
