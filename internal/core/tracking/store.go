package tracking

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ricochet-gg/ricochet/internal/core/anticheat"
	"github.com/ricochet-gg/ricochet/internal/core/geometry"
	"github.com/ricochet-gg/ricochet/internal/core/observability/log"
	"github.com/ricochet-gg/ricochet/pkg/ring"
)

// Config holds tracking and compensation tuning.
type Config struct {
	// History settings
	MaxSamples        int
	RetentionWindow   float64 // seconds of history kept per entity
	MinSampleInterval float64 // seconds; faster updates may be compressed away
	MovementEpsilon   float64 // world units; below this a sample carries no new information

	// Movement validation caps
	MaxSpeed               float64 // units/s
	MaxAcceleration        float64 // units/s^2
	MaxInstantDisplacement float64 // units, on top of velocity-explained travel
	SuspicionLimit         uint32  // violations before the entity is flagged

	// Compensation settings
	MaxCompensationWindow float64 // seconds an entity may be rewound
	ExtrapolationLimit    float64 // seconds beyond the newest sample
	InterpolationGapScale float64 // units; spatial gap that halves confidence
	LatencySmoothing      float64 // EMA alpha for average latency
	MaxWorldCoordinate    float64 // sanity bound on computed positions
}

// DefaultConfig returns tracking configuration tuned for a 64-tick server.
func DefaultConfig() Config {
	return Config{
		MaxSamples:             128,
		RetentionWindow:        2.0,
		MinSampleInterval:      1.0 / 128,
		MovementEpsilon:        0.01,
		MaxSpeed:               20.0,
		MaxAcceleration:        150.0,
		MaxInstantDisplacement: 5.0,
		SuspicionLimit:         10,
		MaxCompensationWindow:  1.0,
		ExtrapolationLimit:     0.25,
		InterpolationGapScale:  10.0,
		LatencySmoothing:       0.1,
		MaxWorldCoordinate:     100_000,
	}
}

// entityState is the per-entity mutable record. All access goes through its
// mutex; the Store never hands the pointer outside the package.
type entityState struct {
	mu         sync.Mutex
	samples    *ring.Buffer[Sample]
	lastUpdate float64
	avgLatency float64
	suspicious uint32
	valid      bool
	gone       bool // set under mu when Sweep removes the entry; writers retry
}

// Store owns every entity's position history. It is the single writer for
// history state; the resolver and compensator read through its methods.
type Store struct {
	cfg      Config
	now      func() float64
	logger   log.Log
	reporter anticheat.Reporter

	entities sync.Map // entityID -> *entityState

	compensations atomic.Uint64
	flaggedCount  atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the server time source (seconds). Tests use this to
// drive deterministic timelines.
func WithClock(now func() float64) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(cfg Config, logger log.Log, reporter anticheat.Reporter, opts ...Option) *Store {
	if logger == nil {
		logger = log.Nop()
	}
	if reporter == nil {
		reporter = anticheat.NopReporter{}
	}
	s := &Store{
		cfg:      cfg,
		now:      wallClock,
		logger:   logger,
		reporter: reporter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func wallClock() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// Now returns the store's current server time in seconds.
func (s *Store) Now() float64 {
	return s.now()
}

// Record validates and appends one position sample for an entity, returning
// every movement flag the sample raised. Out-of-order and duplicate samples
// are dropped, never reordered.
func (s *Store) Record(entityID string, position, velocity mgl64.Vec3, clientTime, latency float64) anticheat.FlagSet {
	var flags anticheat.FlagSet
	if !geometry.Finite(position) || !geometry.Finite(velocity) {
		flags.Add(anticheat.FlagNumericalInstability)
		return flags
	}

	state := s.lockEntity(entityID)
	defer state.mu.Unlock()

	serverNow := s.now()
	sample := Sample{
		Position:   position,
		Velocity:   velocity,
		ClientTime: clientTime,
		ServerTime: serverNow,
		Latency:    latency,
	}

	last, hasLast := state.samples.Last()
	if hasLast && (clientTime <= last.ClientTime || serverNow < last.ServerTime) {
		return flags
	}
	flags = s.validateMovement(entityID, state, last, hasLast, sample)

	if hasLast {
		dt := serverNow - last.ServerTime
		moved := position.Sub(last.Position).Len()
		if dt < s.cfg.MinSampleInterval && moved < s.cfg.MovementEpsilon {
			return flags
		}
	}

	state.samples.Push(sample)
	state.lastUpdate = serverNow
	if state.avgLatency == 0 {
		state.avgLatency = latency
	} else {
		alpha := s.cfg.LatencySmoothing
		state.avgLatency = state.avgLatency*(1-alpha) + latency*alpha
	}
	s.evictExpired(state, serverNow)
	return flags
}

// CheckOrigin runs the teleport/speed checks against a claimed shot origin
// without appending it to history. The shot pipeline delegates here so that
// spoofed origins raise the same flags as spoofed movement.
func (s *Store) CheckOrigin(entityID string, origin mgl64.Vec3, clientTime float64) anticheat.FlagSet {
	var flags anticheat.FlagSet
	if !geometry.Finite(origin) {
		flags.Add(anticheat.FlagNumericalInstability)
		return flags
	}

	state, ok := s.lockExisting(entityID)
	if !ok {
		return flags
	}
	defer state.mu.Unlock()

	if !state.valid {
		flags.Add(anticheat.FlagPlayerFlagged)
		return flags
	}
	last, ok := state.samples.Last()
	if !ok {
		return flags
	}

	dt := s.now() - last.ServerTime
	if dt < s.cfg.MinSampleInterval {
		dt = s.cfg.MinSampleInterval
	}
	displacement := origin.Sub(last.Position).Len()
	allowed := s.cfg.MaxInstantDisplacement + last.Velocity.Len()*dt
	if displacement > allowed {
		flags.Add(anticheat.FlagTeleportation)
		s.raiseSuspicion(entityID, state, anticheat.FlagTeleportation, 8, map[string]any{
			"displacement": displacement,
			"allowed":      allowed,
			"client_time":  clientTime,
			"context":      "shot_origin",
		})
	}
	return flags
}

// Reset clears an entity's history and flagged state. Administrative only.
func (s *Store) Reset(entityID string) {
	state, ok := s.lockExisting(entityID)
	if !ok {
		return
	}
	defer state.mu.Unlock()

	if !state.valid {
		s.flaggedCount.Add(-1)
	}
	state.samples.Clear()
	state.lastUpdate = 0
	state.avgLatency = 0
	state.suspicious = 0
	state.valid = true
	s.logger.Info("entity state reset", log.String("entity_id", entityID))
}

// Sweep removes entities idle longer than maxIdle seconds and returns how
// many were evicted. Runs from the engine's background task; per-entity
// locking keeps it exclusive with Record/Compensate on the same entity.
func (s *Store) Sweep(maxIdle float64) int {
	cutoff := s.now() - maxIdle
	removed := 0
	s.entities.Range(func(key, value any) bool {
		state := value.(*entityState)
		state.mu.Lock()
		if state.lastUpdate < cutoff && state.valid {
			// Tombstone and delete under the lock; a Record holding the old
			// pointer sees gone and retries against the map.
			state.gone = true
			s.entities.Delete(key)
			removed++
		}
		state.mu.Unlock()
		return true
	})
	return removed
}

// AverageLatency returns the entity's smoothed latency, or 0 if untracked.
func (s *Store) AverageLatency(entityID string) float64 {
	state, ok := s.lockExisting(entityID)
	if !ok {
		return 0
	}
	defer state.mu.Unlock()
	return state.avgLatency
}

// LastKnownPosition returns the most recent recorded position for an entity.
func (s *Store) LastKnownPosition(entityID string) (mgl64.Vec3, bool) {
	state, ok := s.lockExisting(entityID)
	if !ok {
		return mgl64.Vec3{}, false
	}
	defer state.mu.Unlock()
	last, ok := state.samples.Last()
	if !ok {
		return mgl64.Vec3{}, false
	}
	return last.Position, true
}

// FlaggedCount returns how many entities currently sit in the fail-closed
// flagged state.
func (s *Store) FlaggedCount() int64 {
	return s.flaggedCount.Load()
}

// Compensations returns the total number of rewind requests served.
func (s *Store) Compensations() uint64 {
	return s.compensations.Load()
}

func (s *Store) entity(entityID string) *entityState {
	if value, ok := s.entities.Load(entityID); ok {
		return value.(*entityState)
	}
	state := &entityState{
		samples: ring.New[Sample](s.cfg.MaxSamples),
		valid:   true,
	}
	actual, _ := s.entities.LoadOrStore(entityID, state)
	return actual.(*entityState)
}

// lockEntity returns the entity's state with its mutex held, creating the
// entry on first use. A state tombstoned by a concurrent sweep is discarded
// and the lookup retried against the map.
func (s *Store) lockEntity(entityID string) *entityState {
	for {
		state := s.entity(entityID)
		state.mu.Lock()
		if !state.gone {
			return state
		}
		state.mu.Unlock()
	}
}

// lockExisting returns the entity's state with its mutex held, or false for
// untracked (or swept) entities.
func (s *Store) lockExisting(entityID string) (*entityState, bool) {
	value, ok := s.entities.Load(entityID)
	if !ok {
		return nil, false
	}
	state := value.(*entityState)
	state.mu.Lock()
	if state.gone {
		state.mu.Unlock()
		return nil, false
	}
	return state, true
}

func (s *Store) evictExpired(state *entityState, serverNow float64) {
	cutoff := serverNow - s.cfg.RetentionWindow
	drop := 0
	state.samples.Each(func(_ int, sample Sample) bool {
		if sample.ServerTime >= cutoff {
			return false
		}
		drop++
		return true
	})
	state.samples.DropFirst(drop)
}
