package tracking

import (
	"github.com/ricochet-gg/ricochet/internal/core/anticheat"
	"github.com/ricochet-gg/ricochet/internal/core/observability/log"
)

// validateMovement runs every movement check against the incoming sample.
// All checks are evaluated, not short-circuited, so a single sample can raise
// multiple independent flags. The speed cap needs no prior sample; teleport
// and acceleration compare against one. Caller holds state.mu.
func (s *Store) validateMovement(entityID string, state *entityState, last Sample, hasLast bool, next Sample) anticheat.FlagSet {
	var flags anticheat.FlagSet

	speed := next.Velocity.Len()
	if speed > s.cfg.MaxSpeed {
		flags.Add(anticheat.FlagExcessiveVelocity)
		s.raiseSuspicion(entityID, state, anticheat.FlagExcessiveVelocity, 7, map[string]any{
			"speed":     speed,
			"max_speed": s.cfg.MaxSpeed,
		})
	}

	if !hasLast {
		return flags
	}

	dt := next.ServerTime - last.ServerTime
	if dt < s.cfg.MinSampleInterval {
		dt = s.cfg.MinSampleInterval
	}

	displacement := next.Position.Sub(last.Position).Len()
	allowed := s.cfg.MaxInstantDisplacement + last.Velocity.Len()*dt
	if displacement > allowed {
		flags.Add(anticheat.FlagTeleportation)
		s.raiseSuspicion(entityID, state, anticheat.FlagTeleportation, 8, map[string]any{
			"displacement": displacement,
			"allowed":      allowed,
			"dt":           dt,
		})
	}

	// Acceleration needs two prior samples: one to carry a velocity and one
	// to anchor the time base for that velocity.
	if state.samples.Len() >= 2 {
		accel := next.Velocity.Sub(last.Velocity).Len() / dt
		if accel > s.cfg.MaxAcceleration {
			flags.Add(anticheat.FlagExcessiveAcceleration)
			s.raiseSuspicion(entityID, state, anticheat.FlagExcessiveAcceleration, 4, map[string]any{
				"acceleration": accel,
				"max":          s.cfg.MaxAcceleration,
			})
		}
	}

	return flags
}

// raiseSuspicion bumps the entity's violation counter, reports the threat,
// and trips the fail-closed flagged state once the counter crosses the
// configured limit. Caller holds state.mu.
func (s *Store) raiseSuspicion(entityID string, state *entityState, kind anticheat.Flag, severity uint8, evidence map[string]any) {
	state.suspicious++
	s.reporter.Report(anticheat.NewThreat(entityID, kind, severity, evidence))

	if state.valid && state.suspicious >= s.cfg.SuspicionLimit {
		state.valid = false
		s.flaggedCount.Add(1)
		s.reporter.Report(anticheat.NewThreat(entityID, anticheat.FlagPlayerFlagged, 9, map[string]any{
			"violations": state.suspicious,
		}))
		s.logger.Warn("entity flagged, compensation disabled",
			log.String("entity_id", entityID),
			log.Uint32("violations", state.suspicious),
		)
	}
}
