package resolver

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/ricochet-gg/ricochet/internal/core/anticheat"
	"github.com/ricochet-gg/ricochet/internal/core/ballistics"
	"github.com/ricochet-gg/ricochet/pkg/ring"
)

// shooterState serializes everything sequential about one shooter: fire-rate
// windows and claim ordering. Claims from different shooters only share the
// sync.Map holding these states.
type shooterState struct {
	mu       sync.Mutex
	windows  map[uint64]*fireWindow // weapon bucket key -> window
	lastSeen float64
	gone     bool // set under mu when PruneShooters removes the entry
}

type fireWindow struct {
	shots    *ring.Buffer[float64]
	lastShot float64
}

// bucketKey hashes shooter and weapon into one window key.
func bucketKey(shooterID, weaponID string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(shooterID)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(weaponID)
	return h.Sum64()
}

func (r *Resolver) shooter(shooterID string) *shooterState {
	if value, ok := r.shooters.Load(shooterID); ok {
		return value.(*shooterState)
	}
	state := &shooterState{windows: make(map[uint64]*fireWindow)}
	actual, _ := r.shooters.LoadOrStore(shooterID, state)
	return actual.(*shooterState)
}

// lockShooter returns the shooter's state with its mutex held, retrying when
// a concurrent prune tombstoned the loaded entry.
func (r *Resolver) lockShooter(shooterID string) *shooterState {
	for {
		state := r.shooter(shooterID)
		state.mu.Lock()
		if !state.gone {
			return state
		}
		state.mu.Unlock()
	}
}

// checkFireRate applies the sliding-window and inter-shot-interval limits for
// one shooter+weapon bucket, then records the shot. Caller holds state.mu.
func (r *Resolver) checkFireRate(state *shooterState, key uint64, weapon ballistics.Weapon, now float64) anticheat.FlagSet {
	var flags anticheat.FlagSet

	window, ok := state.windows[key]
	if !ok {
		capacity := int(weapon.MaxFireRate) + 1
		if capacity < 8 {
			capacity = 8
		}
		window = &fireWindow{shots: ring.New[float64](capacity)}
		state.windows[key] = window
	}

	cutoff := now - r.cfg.RateWindow
	expired := 0
	window.shots.Each(func(_ int, ts float64) bool {
		if ts > cutoff {
			return false
		}
		expired++
		return true
	})
	window.shots.DropFirst(expired)

	if float64(window.shots.Len()) >= weapon.MaxFireRate {
		flags.Add(anticheat.FlagRateLimitExceeded)
	}
	if window.lastShot > 0 && now-window.lastShot < weapon.MinShotInterval {
		flags.Add(anticheat.FlagFireIntervalViolation)
	}

	window.shots.Push(now)
	window.lastShot = now
	return flags
}

// PruneShooters drops shooter rate state idle longer than maxIdle seconds.
func (r *Resolver) PruneShooters(maxIdle float64) int {
	cutoff := r.tracker.Now() - maxIdle
	removed := 0
	r.shooters.Range(func(key, value any) bool {
		state := value.(*shooterState)
		state.mu.Lock()
		if state.lastSeen < cutoff {
			state.gone = true
			r.shooters.Delete(key)
			removed++
		}
		state.mu.Unlock()
		return true
	})
	return removed
}
