package ballistics

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ricochet-gg/ricochet/internal/core/geometry"
	"github.com/ricochet-gg/ricochet/internal/core/observability/log"
)

// Config holds raycaster tuning.
type Config struct {
	// SurfaceEpsilon is how far past a penetrated surface the next march
	// segment starts, so the same face is not hit twice.
	SurfaceEpsilon float64
	// MaxIterations caps the march against degenerate geometry. The range
	// and penetration budgets should terminate the loop first.
	MaxIterations int
}

func DefaultConfig() Config {
	return Config{
		SurfaceEpsilon: 0.01,
		MaxIterations:  16,
	}
}

// TargetOverride injects a rewound hitbox into the march: the position a lag
// compensated target occupied at shot time, tested per segment before the
// live world geometry.
type TargetOverride struct {
	EntityID string
	Position mgl64.Vec3
	Radius   float64
}

// CastOptions tune a single cast.
type CastOptions struct {
	// ExcludeObjects are object IDs the ray ignores, typically the shooter.
	ExcludeObjects []string
	// Target, when set, is the rewound hitbox of the declared target.
	Target *TargetOverride
}

// CastResult describes where a penetrating shot ended up.
type CastResult struct {
	// EntityID is the owning entity when the ray struck an entity hitbox,
	// empty when the ray ended in world geometry.
	EntityID string
	// ObjectID is the struck sub-object (hitbox or surface).
	ObjectID string
	Position mgl64.Vec3
	Material Material
	// Penetrated lists traversed materials in order.
	Penetrated []Material
	// Multiplier is the residual damage fraction after penetration loss.
	Multiplier float64
	// Distance is the total path length from the original origin.
	Distance float64
	// CostSpent is the cumulative penetration cost consumed.
	CostSpent float64
}

// Raycaster marches a ray through penetrable geometry, spending the weapon's
// penetration budget per traversed material. An entity hit always terminates
// the march.
type Raycaster struct {
	world  World
	costs  MaterialCosts
	cfg    Config
	logger log.Log
}

func NewRaycaster(world World, costs MaterialCosts, cfg Config, logger log.Log) *Raycaster {
	if logger == nil {
		logger = log.Nop()
	}
	return &Raycaster{world: world, costs: costs, cfg: cfg, logger: logger}
}

// Cast marches from origin along direction until an entity is hit, the
// penetration or range budget is exhausted, or nothing intersects. Returns
// (nil, nil) on a clean miss or full absorption.
func (r *Raycaster) Cast(origin, direction mgl64.Vec3, weapon Weapon, opts CastOptions) (*CastResult, error) {
	excluded := make(map[string]struct{}, len(opts.ExcludeObjects)+r.cfg.MaxIterations)
	for _, id := range opts.ExcludeObjects {
		excluded[id] = struct{}{}
	}

	result := CastResult{Multiplier: 1.0}
	remainingPenetration := weapon.PenetrationBudget
	remainingRange := weapon.MaxRange
	current := origin

	for iteration := 0; iteration < r.cfg.MaxIterations; iteration++ {
		if remainingRange <= 0 {
			return nil, nil
		}

		overrideDistance, overrideHit := r.testOverride(current, direction, remainingRange, opts.Target)

		hit, err := r.world.Raycast(current, direction, remainingRange, excluded)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWorldQuery, err)
		}

		if overrideHit && (hit == nil || overrideDistance <= hit.Position.Sub(current).Len()) {
			result.EntityID = opts.Target.EntityID
			result.ObjectID = opts.Target.EntityID
			result.Position = current.Add(direction.Mul(overrideDistance))
			result.Distance += overrideDistance
			return &result, nil
		}
		if hit == nil {
			return nil, nil
		}

		segment := hit.Position.Sub(current).Len()
		if hit.IsEntity {
			result.EntityID = hit.OwnerEntityID
			result.ObjectID = hit.ObjectID
			result.Position = hit.Position
			result.Material = hit.Material
			result.Distance += segment
			return &result, nil
		}

		cost := r.costs.PenetrationCost(hit.Material)
		if cost > remainingPenetration {
			// Fully absorbed by the surface.
			return nil, nil
		}
		remainingPenetration -= cost
		result.CostSpent += cost
		result.Multiplier *= 1 - weapon.DamageReduction
		result.Penetrated = append(result.Penetrated, hit.Material)
		excluded[hit.ObjectID] = struct{}{}

		advance := segment + r.cfg.SurfaceEpsilon
		current = hit.Position.Add(direction.Mul(r.cfg.SurfaceEpsilon))
		result.Distance += advance
		remainingRange -= advance
	}

	r.logger.Warn("raycast march hit iteration cap",
		log.Int("max_iterations", r.cfg.MaxIterations),
		log.Float64("distance", result.Distance),
	)
	return nil, nil
}

func (r *Raycaster) testOverride(current, direction mgl64.Vec3, remainingRange float64, target *TargetOverride) (float64, bool) {
	if target == nil {
		return 0, false
	}
	distance, ok := geometry.RaySphere(current, direction, target.Position, target.Radius)
	if !ok || distance > remainingRange {
		return 0, false
	}
	return distance, true
}
