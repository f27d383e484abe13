package ballistics

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	ErrUnknownWeapon = errors.New("unknown weapon")
	ErrWorldQuery    = errors.New("world raycast query failed")
)

// Material names the substance a ray passed through. Costs come from the
// MaterialCosts port; unknown materials are treated as impenetrable.
type Material string

// RayHit is one intersection reported by the engine's ray primitive.
type RayHit struct {
	ObjectID      string
	Position      mgl64.Vec3
	Material      Material
	IsEntity      bool
	OwnerEntityID string
}

// World is the engine's ray-intersection primitive. Implementations return
// (nil, nil) when nothing intersects within maxDistance. The query is
// synchronous and bounded; a non-nil error is an internal fault, not a miss.
type World interface {
	Raycast(origin, direction mgl64.Vec3, maxDistance float64, excluded map[string]struct{}) (*RayHit, error)
}

// BodyDamage holds per-hitbox base damage for a weapon.
type BodyDamage struct {
	Head  uint32
	Torso uint32
	Limb  uint32
}

// Weapon is one row of the static weapon tuning table.
type Weapon struct {
	MaxRange          float64
	BaseDamage        BodyDamage
	PenetrationBudget float64 // total material cost the projectile can absorb
	DamageReduction   float64 // multiplier loss per penetrated material, in [0,1)
	MaxFireRate       float64 // shots per second
	MinShotInterval   float64 // seconds between consecutive shots
}

// Armory resolves weapon IDs against the tuning table.
type Armory interface {
	Weapon(weaponID string) (Weapon, bool)
}

// MaterialCosts resolves the penetration cost of a material.
type MaterialCosts interface {
	PenetrationCost(material Material) float64
}

// StaticArmory is a map-backed Armory.
type StaticArmory map[string]Weapon

func (a StaticArmory) Weapon(weaponID string) (Weapon, bool) {
	w, ok := a[weaponID]
	return w, ok
}

// StaticCosts is a map-backed MaterialCosts. Materials absent from the map
// are impenetrable.
type StaticCosts map[Material]float64

func (c StaticCosts) PenetrationCost(material Material) float64 {
	if cost, ok := c[material]; ok {
		return cost
	}
	return impenetrableCost
}

const impenetrableCost = 1e9

// EmptyWorld has no geometry: every ray misses. Stands in until a game
// engine adapter is wired behind the World port.
type EmptyWorld struct{}

func (EmptyWorld) Raycast(mgl64.Vec3, mgl64.Vec3, float64, map[string]struct{}) (*RayHit, error) {
	return nil, nil
}
