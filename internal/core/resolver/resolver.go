package resolver

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/ricochet-gg/ricochet/internal/core/anticheat"
	"github.com/ricochet-gg/ricochet/internal/core/ballistics"
	"github.com/ricochet-gg/ricochet/internal/core/geometry"
	"github.com/ricochet-gg/ricochet/internal/core/observability/log"
	"github.com/ricochet-gg/ricochet/internal/core/tracking"
)

// Config holds claim validation tuning.
type Config struct {
	// AngleTolerance is the max radians between the declared aim vector and
	// the claimed shot direction.
	AngleTolerance float64
	// TrajectoryTolerance is the max distance (units) the resolved hit may
	// sit off the claimed ray.
	TrajectoryTolerance float64
	// DirectionTolerance bounds how far the claimed direction may deviate
	// from unit length before the claim is structurally invalid.
	DirectionTolerance float64
	// EyeHeight lifts the shooter's recorded position to eye level for the
	// aim-angle check.
	EyeHeight float64
	// HitboxRadius is the sphere radius used for rewound targets.
	HitboxRadius float64
	// RateWindow is the sliding fire-rate window, in seconds.
	RateWindow float64
}

func DefaultConfig() Config {
	return Config{
		AngleTolerance:      0.35, // ~20 degrees
		TrajectoryTolerance: 1.0,
		DirectionTolerance:  0.01,
		EyeHeight:           1.6,
		HitboxRadius:        0.9,
		RateWindow:          1.0,
	}
}

// Resolver turns shot claims into authoritative verdicts. Claims from the
// same shooter are serialized on that shooter's state; claims from different
// shooters run concurrently.
type Resolver struct {
	cfg       Config
	armory    ballistics.Armory
	raycaster *ballistics.Raycaster
	tracker   *tracking.Store
	logger    log.Log
	reporter  anticheat.Reporter
	classify  func(objectID string) BodyPart

	shooters sync.Map // shooterID -> *shooterState

	totalShots atomic.Uint64
	validShots atomic.Uint64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClassifier overrides hitbox-to-body-part classification.
func WithClassifier(classify func(objectID string) BodyPart) Option {
	return func(r *Resolver) { r.classify = classify }
}

func New(cfg Config, armory ballistics.Armory, raycaster *ballistics.Raycaster, tracker *tracking.Store, logger log.Log, reporter anticheat.Reporter, opts ...Option) *Resolver {
	if logger == nil {
		logger = log.Nop()
	}
	if reporter == nil {
		reporter = anticheat.NopReporter{}
	}
	r := &Resolver{
		cfg:       cfg,
		armory:    armory,
		raycaster: raycaster,
		tracker:   tracker,
		logger:    logger,
		reporter:  reporter,
		classify:  ClassifyHitbox,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve validates one claim end to end and returns the verdict. Except for
// structurally invalid input, every check runs so the verdict carries the
// complete flag set.
func (r *Resolver) Resolve(claim Claim) Verdict {
	r.totalShots.Add(1)

	verdict := Verdict{
		ClaimID:    claim.ClaimID,
		ServerTime: r.tracker.Now(),
	}

	weapon, structuralOK := r.validateStructure(claim, &verdict)
	if !structuralOK {
		r.finish(claim, &verdict)
		return verdict
	}

	// The shooter's lock must release even if the world adapter panics
	// mid-cast, so the locked section unlocks via defer.
	var hit *ballistics.CastResult
	var err error
	func() {
		state := r.lockShooter(claim.ShooterID)
		defer state.mu.Unlock()
		state.lastSeen = verdict.ServerTime

		rateFlags := r.checkFireRate(state, bucketKey(claim.ShooterID, claim.WeaponID), weapon, verdict.ServerTime)
		verdict.Flags.Merge(rateFlags)
		verdict.Checks.Rate = rateFlags.Empty()

		moveFlags := r.tracker.CheckOrigin(claim.ShooterID, claim.Origin, claim.ClientTime)
		verdict.Flags.Merge(moveFlags)
		verdict.Checks.Speed = moveFlags.Empty()

		verdict.Checks.Angle = r.checkAim(claim, &verdict)

		castOpts := ballistics.CastOptions{ExcludeObjects: []string{claim.ShooterID}}
		if claim.TargetEntityID != "" {
			castOpts.Target = r.rewindTarget(claim, &verdict)
		}

		hit, err = r.raycaster.Cast(claim.Origin, claim.Direction, weapon, castOpts)
	}()

	if err != nil {
		// A failing world query is an internal fault: score the shot as a
		// miss and flag it for investigation instead of crashing the tick.
		verdict.Flags.Add(anticheat.FlagWorldQueryFault)
		r.logger.Error("world raycast failed",
			log.String("claim_id", claim.ClaimID),
			log.Error("error", err),
		)
		hit = nil
	}

	r.scoreHit(claim, weapon, hit, &verdict)
	r.finish(claim, &verdict)
	return verdict
}

// TotalShots returns how many claims have been resolved.
func (r *Resolver) TotalShots() uint64 {
	return r.totalShots.Load()
}

// SuccessRate returns the fraction of resolved claims that produced a valid
// verdict.
func (r *Resolver) SuccessRate() float64 {
	total := r.totalShots.Load()
	if total == 0 {
		return 0
	}
	return float64(r.validShots.Load()) / float64(total)
}

// validateStructure rejects malformed claims outright. This is the one stage
// that short-circuits: nothing downstream can interpret broken input.
func (r *Resolver) validateStructure(claim Claim, verdict *Verdict) (ballistics.Weapon, bool) {
	structural := claim.ShooterID != "" &&
		claim.WeaponID != "" &&
		geometry.Finite(claim.Origin) &&
		geometry.Finite(claim.Direction) &&
		geometry.Finite(claim.DeclaredTarget) &&
		!math.IsInf(claim.ClientTime, 0) &&
		!math.IsNaN(claim.ClientTime) &&
		geometry.NearlyUnit(claim.Direction, r.cfg.DirectionTolerance)
	if !structural {
		verdict.Flags.Add(anticheat.FlagInvalidShotData)
		return ballistics.Weapon{}, false
	}

	weapon, ok := r.armory.Weapon(claim.WeaponID)
	if !ok {
		verdict.Flags.Add(anticheat.FlagInvalidWeapon)
		return ballistics.Weapon{}, false
	}
	return weapon, true
}

// checkAim verifies the claimed direction roughly points at the declared
// target from the shooter's eye. Large deviation implies a tampered aim
// vector.
func (r *Resolver) checkAim(claim Claim, verdict *Verdict) bool {
	eye := claim.Origin
	if known, ok := r.tracker.LastKnownPosition(claim.ShooterID); ok {
		eye = known
		eye[1] += r.cfg.EyeHeight
	}

	toTarget := claim.DeclaredTarget.Sub(eye)
	if toTarget.Len() == 0 {
		return true
	}
	if geometry.AngleBetween(toTarget, claim.Direction) > r.cfg.AngleTolerance {
		verdict.Flags.Add(anticheat.FlagAimAngleDeviation)
		return false
	}
	return true
}

// rewindTarget reconstructs where the declared target was at the claimed
// shot time. The rewound hitbox feeds the raycaster explicitly; a failed or
// shaky rewind only downgrades, it never poisons the shooter's verdict with
// the target's flags.
func (r *Resolver) rewindTarget(claim Claim, verdict *Verdict) *ballistics.TargetOverride {
	comp := r.tracker.Compensate(claim.TargetEntityID, claim.ClientTime)
	if !comp.Valid {
		r.logger.Debug("rewind unavailable, casting against live world",
			log.String("claim_id", claim.ClaimID),
			log.String("target_id", claim.TargetEntityID),
			log.Strings("rewind_flags", comp.Flags.Names()),
		)
		return nil
	}
	if comp.Flags.Has(anticheat.FlagLowConfidenceRewind) {
		verdict.Flags.Add(anticheat.FlagLowConfidenceRewind)
	}
	return &ballistics.TargetOverride{
		EntityID: claim.TargetEntityID,
		Position: comp.Position,
		Radius:   r.cfg.HitboxRadius,
	}
}

// scoreHit applies range/trajectory checks and computes damage.
func (r *Resolver) scoreHit(claim Claim, weapon ballistics.Weapon, hit *ballistics.CastResult, verdict *Verdict) {
	if hit == nil {
		// A miss contradicts nothing.
		verdict.Checks.Range = true
		verdict.Checks.Trajectory = true
		verdict.BodyPart = BodyPartNone
	} else {
		verdict.Distance = hit.Distance
		verdict.Penetrated = hit.Penetrated

		verdict.Checks.Range = hit.Distance <= weapon.MaxRange
		if !verdict.Checks.Range {
			verdict.Flags.Add(anticheat.FlagRangeExceeded)
		}

		expected := claim.Origin.Add(claim.Direction.Mul(hit.Distance))
		verdict.Checks.Trajectory = hit.Position.Sub(expected).Len() <= r.cfg.TrajectoryTolerance
		if !verdict.Checks.Trajectory {
			verdict.Flags.Add(anticheat.FlagTrajectoryMismatch)
		}

		if hit.EntityID != "" && verdict.Checks.Range && verdict.Checks.Trajectory {
			verdict.BodyPart = r.classify(hit.ObjectID)
			if verdict.BodyPart == BodyPartNone {
				// Rewound sphere hits carry no hitbox detail; score as
				// center mass.
				verdict.BodyPart = BodyPartTorso
			}
			verdict.Damage = uint32(math.Floor(float64(baseDamage(weapon, verdict.BodyPart)) * hit.Multiplier))
		}
	}

	verdict.Valid = !verdict.Flags.HasCritical()
	if !verdict.Valid {
		verdict.Damage = 0
	} else {
		r.validShots.Add(1)
	}
}

func (r *Resolver) finish(claim Claim, verdict *Verdict) {
	if !verdict.Flags.Empty() {
		severity := uint8(3)
		if verdict.Flags.HasCritical() {
			severity = 7
		}
		r.reporter.Report(anticheat.NewThreat(claim.ShooterID, verdict.Flags.Dominant(), severity, map[string]any{
			"claim_id": claim.ClaimID,
			"flags":    verdict.Flags.Names(),
		}))
	}
	r.logger.Debug("claim resolved",
		log.String("claim_id", claim.ClaimID),
		log.String("shooter_id", claim.ShooterID),
		log.Bool("valid", verdict.Valid),
		log.Uint32("damage", verdict.Damage),
		log.String("body_part", verdict.BodyPart.String()),
		log.Strings("flags", verdict.Flags.Names()),
	)
}

func baseDamage(weapon ballistics.Weapon, part BodyPart) uint32 {
	switch part {
	case BodyPartHead:
		return weapon.BaseDamage.Head
	case BodyPartTorso:
		return weapon.BaseDamage.Torso
	case BodyPartLimb:
		return weapon.BaseDamage.Limb
	default:
		return 0
	}
}
