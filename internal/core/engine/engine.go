package engine

import (
	"context"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ricochet-gg/ricochet/internal/core/anticheat"
	"github.com/ricochet-gg/ricochet/internal/core/ballistics"
	"github.com/ricochet-gg/ricochet/internal/core/observability/log"
	"github.com/ricochet-gg/ricochet/internal/core/resolver"
	"github.com/ricochet-gg/ricochet/internal/core/tracking"
)

// Config wires the subsystem configurations together.
type Config struct {
	Tracking  tracking.Config
	Raycast   ballistics.Config
	Resolving resolver.Config

	// SweepInterval is how often stale entity and shooter state is evicted.
	SweepInterval time.Duration
	// MaxEntityIdle is how long an entity may go without updates before its
	// history is dropped.
	MaxEntityIdle float64
}

func DefaultConfig() Config {
	return Config{
		Tracking:      tracking.DefaultConfig(),
		Raycast:       ballistics.DefaultConfig(),
		Resolving:     resolver.DefaultConfig(),
		SweepInterval: 30 * time.Second,
		MaxEntityIdle: 120,
	}
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	TotalShots         uint64
	TotalCompensations uint64
	SuccessRate        float64
	FlaggedEntities    int64
}

// Engine is the public face of the hit validation subsystem: position
// recording, rewinds, shot resolution, stats, and administrative resets.
type Engine struct {
	tracker  *tracking.Store
	resolver *resolver.Resolver
	logger   log.Log

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, world ballistics.World, armory ballistics.Armory, costs ballistics.MaterialCosts, logger log.Log, reporter anticheat.Reporter, trackerOpts ...tracking.Option) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	tracker := tracking.NewStore(cfg.Tracking, logger, reporter, trackerOpts...)
	raycaster := ballistics.NewRaycaster(world, costs, cfg.Raycast, logger)
	return &Engine{
		tracker:  tracker,
		resolver: resolver.New(cfg.Resolving, armory, raycaster, tracker, logger, reporter),
		logger:   logger,
	}
}

// RecordPosition feeds one live position sample into the entity's history.
func (e *Engine) RecordPosition(entityID string, position, velocity mgl64.Vec3, clientTime, latency float64) anticheat.FlagSet {
	return e.tracker.Record(entityID, position, velocity, clientTime, latency)
}

// Compensate rewinds an entity to targetTime.
func (e *Engine) Compensate(entityID string, targetTime float64) tracking.CompensationResult {
	return e.tracker.Compensate(entityID, targetTime)
}

// ResolveShot validates a claim and returns the authoritative verdict.
func (e *Engine) ResolveShot(claim resolver.Claim) resolver.Verdict {
	return e.resolver.Resolve(claim)
}

// ResetEntity clears an entity's history and flagged state. Administrative
// only; this is the sole way out of the fail-closed flagged state.
func (e *Engine) ResetEntity(entityID string) {
	e.tracker.Reset(entityID)
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		TotalShots:         e.resolver.TotalShots(),
		TotalCompensations: e.tracker.Compensations(),
		SuccessRate:        e.resolver.SuccessRate(),
		FlaggedEntities:    e.tracker.FlaggedCount(),
	}
}

// Start launches the background sweep task. The task only removes stale
// data; it never touches a verdict already produced.
func (e *Engine) Start(ctx context.Context, cfg Config) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				entities := e.tracker.Sweep(cfg.MaxEntityIdle)
				shooters := e.resolver.PruneShooters(cfg.MaxEntityIdle)
				if entities > 0 || shooters > 0 {
					e.logger.Debug("stale state swept",
						log.Int("entities", entities),
						log.Int("shooters", shooters),
					)
				}
			}
		}
	}()
}

// Stop cancels the background task and waits for it to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}
