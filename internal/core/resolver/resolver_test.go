package resolver

import (
	"fmt"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"

	"github.com/ricochet-gg/ricochet/internal/core/anticheat"
	"github.com/ricochet-gg/ricochet/internal/core/ballistics"
	"github.com/ricochet-gg/ricochet/internal/core/tracking"
)

// staticWorld replays a fixed hit for every query.
type staticWorld struct {
	hit *ballistics.RayHit
}

func (w *staticWorld) Raycast(_, _ mgl64.Vec3, maxDistance float64, excluded map[string]struct{}) (*ballistics.RayHit, error) {
	if w.hit == nil {
		return nil, nil
	}
	if _, skip := excluded[w.hit.ObjectID]; skip {
		return nil, nil
	}
	out := *w.hit
	return &out, nil
}

type testClock struct {
	now float64
}

func (c *testClock) Now() float64 { return c.now }

type harness struct {
	clock    *testClock
	tracker  *tracking.Store
	resolver *Resolver
}

func testArmory() ballistics.StaticArmory {
	return ballistics.StaticArmory{
		"rifle": {
			MaxRange:          300,
			BaseDamage:        ballistics.BodyDamage{Head: 100, Torso: 35, Limb: 20},
			PenetrationBudget: 0,
			DamageReduction:   0.25,
			MaxFireRate:       1000,
			MinShotInterval:   0,
		},
		"mg": {
			MaxRange:          300,
			BaseDamage:        ballistics.BodyDamage{Head: 100, Torso: 35, Limb: 20},
			PenetrationBudget: 0,
			MaxFireRate:       20,
			MinShotInterval:   0,
		},
		"dmr": {
			MaxRange:          300,
			BaseDamage:        ballistics.BodyDamage{Head: 100, Torso: 35, Limb: 20},
			PenetrationBudget: 0,
			MaxFireRate:       1000,
			MinShotInterval:   0.2,
		},
	}
}

func newHarness(world ballistics.World) *harness {
	clock := &testClock{now: 100}
	trackingCfg := tracking.DefaultConfig()
	tracker := tracking.NewStore(trackingCfg, nil, nil, tracking.WithClock(clock.Now))
	raycaster := ballistics.NewRaycaster(world, ballistics.StaticCosts{"wood": 0.5}, ballistics.DefaultConfig(), nil)
	return &harness{
		clock:    clock,
		tracker:  tracker,
		resolver: New(DefaultConfig(), testArmory(), raycaster, tracker, nil, nil),
	}
}

func baseClaim() Claim {
	return Claim{
		ClaimID:        "claim-1",
		ShooterID:      "shooter",
		WeaponID:       "rifle",
		Origin:         mgl64.Vec3{0, 0, 0},
		Direction:      mgl64.Vec3{1, 0, 0},
		DeclaredTarget: mgl64.Vec3{10, 0, 0},
		ClientTime:     99.95,
	}
}

func Test_Resolve_Scenarios(t *testing.T) {
	t.Run("clean miss is valid with zero damage", func(t *testing.T) {
		h := newHarness(ballistics.EmptyWorld{})
		verdict := h.resolver.Resolve(baseClaim())

		require.True(t, verdict.Valid)
		require.Equal(t, uint32(0), verdict.Damage)
		require.Equal(t, BodyPartNone, verdict.BodyPart)
		require.True(t, verdict.Flags.Empty())
		require.True(t, verdict.Checks.Range)
		require.True(t, verdict.Checks.Trajectory)
		require.True(t, verdict.Checks.Speed)
		require.True(t, verdict.Checks.Angle)
		require.True(t, verdict.Checks.Rate)
	})

	t.Run("headshot without penetration deals full base damage", func(t *testing.T) {
		h := newHarness(&staticWorld{hit: &ballistics.RayHit{
			ObjectID:      "victim/head",
			Position:      mgl64.Vec3{10, 0, 0},
			IsEntity:      true,
			OwnerEntityID: "victim",
		}})
		verdict := h.resolver.Resolve(baseClaim())

		require.True(t, verdict.Valid)
		require.Equal(t, uint32(100), verdict.Damage)
		require.Equal(t, BodyPartHead, verdict.BodyPart)
		require.InDelta(t, 10.0, verdict.Distance, 1e-9)
	})

	t.Run("21st shot in one second trips the rate limit", func(t *testing.T) {
		h := newHarness(ballistics.EmptyWorld{})
		claim := baseClaim()
		claim.WeaponID = "mg"

		for i := 0; i < 20; i++ {
			claim.ClaimID = fmt.Sprintf("burst-%d", i)
			verdict := h.resolver.Resolve(claim)
			require.False(t, verdict.Flags.Has(anticheat.FlagRateLimitExceeded), "shot %d", i)
		}

		claim.ClaimID = "burst-20"
		verdict := h.resolver.Resolve(claim)
		require.True(t, verdict.Flags.Has(anticheat.FlagRateLimitExceeded))
		require.False(t, verdict.Checks.Rate)
		// Rate limit alone is a minor violation: recorded, not invalidating.
		require.True(t, verdict.Valid)
	})

	t.Run("shots inside the weapon's minimum interval are flagged", func(t *testing.T) {
		h := newHarness(ballistics.EmptyWorld{})
		claim := baseClaim()
		claim.WeaponID = "dmr"

		first := h.resolver.Resolve(claim)
		require.True(t, first.Checks.Rate)

		h.clock.now += 0.05
		claim.ClaimID = "follow-up"
		verdict := h.resolver.Resolve(claim)
		require.True(t, verdict.Flags.Has(anticheat.FlagFireIntervalViolation))
		require.False(t, verdict.Checks.Rate)
		// Interval violations are minor on their own.
		require.True(t, verdict.Valid)

		h.clock.now += 0.3
		claim.ClaimID = "paced"
		verdict = h.resolver.Resolve(claim)
		require.False(t, verdict.Flags.Has(anticheat.FlagFireIntervalViolation))
		require.True(t, verdict.Checks.Rate)
	})

	t.Run("teleported shot origin invalidates the claim", func(t *testing.T) {
		h := newHarness(ballistics.EmptyWorld{})
		h.tracker.Record("shooter", mgl64.Vec3{0, 0, 0}, mgl64.Vec3{}, 99.9, 0)
		h.clock.now += 0.05

		claim := baseClaim()
		claim.Origin = mgl64.Vec3{500, 0, 0}
		claim.DeclaredTarget = mgl64.Vec3{510, 0, 0}
		verdict := h.resolver.Resolve(claim)

		require.False(t, verdict.Valid)
		require.Equal(t, uint32(0), verdict.Damage)
		require.False(t, verdict.Checks.Speed)
		require.True(t, verdict.Flags.Has(anticheat.FlagTeleportation))
	})

	t.Run("aim far off the declared target is flagged", func(t *testing.T) {
		h := newHarness(ballistics.EmptyWorld{})
		claim := baseClaim()
		claim.DeclaredTarget = mgl64.Vec3{0, 0, 50}
		verdict := h.resolver.Resolve(claim)

		require.True(t, verdict.Flags.Has(anticheat.FlagAimAngleDeviation))
		require.False(t, verdict.Checks.Angle)
		require.True(t, verdict.Valid) // advisory on its own
	})

	t.Run("hit position off the claimed ray is rejected", func(t *testing.T) {
		h := newHarness(&staticWorld{hit: &ballistics.RayHit{
			ObjectID:      "victim/torso",
			Position:      mgl64.Vec3{0, 5, 0},
			IsEntity:      true,
			OwnerEntityID: "victim",
		}})
		verdict := h.resolver.Resolve(baseClaim())

		require.False(t, verdict.Valid)
		require.Equal(t, uint32(0), verdict.Damage)
		require.False(t, verdict.Checks.Trajectory)
		require.True(t, verdict.Flags.Has(anticheat.FlagTrajectoryMismatch))
	})

	t.Run("resolved distance beyond weapon range is rejected", func(t *testing.T) {
		h := newHarness(&staticWorld{hit: &ballistics.RayHit{
			ObjectID:      "victim/torso",
			Position:      mgl64.Vec3{200, 0, 0},
			IsEntity:      true,
			OwnerEntityID: "victim",
		}})
		claim := baseClaim()
		claim.DeclaredTarget = mgl64.Vec3{200, 0, 0}

		armory := testArmory()
		weapon := armory["rifle"]
		weapon.MaxRange = 100
		armory["rifle"] = weapon
		h.resolver.armory = armory

		verdict := h.resolver.Resolve(claim)
		require.False(t, verdict.Valid)
		require.False(t, verdict.Checks.Range)
		require.True(t, verdict.Flags.Has(anticheat.FlagRangeExceeded))
	})
}

func Test_Resolve_Structural(t *testing.T) {
	t.Run("unknown weapon rejects immediately", func(t *testing.T) {
		h := newHarness(ballistics.EmptyWorld{})
		claim := baseClaim()
		claim.WeaponID = "bfg"
		verdict := h.resolver.Resolve(claim)

		require.False(t, verdict.Valid)
		require.True(t, verdict.Flags.Has(anticheat.FlagInvalidWeapon))
		require.Equal(t, Checks{}, verdict.Checks)
	})

	t.Run("non-unit direction is structurally invalid", func(t *testing.T) {
		h := newHarness(ballistics.EmptyWorld{})
		claim := baseClaim()
		claim.Direction = mgl64.Vec3{3, 0, 0}
		verdict := h.resolver.Resolve(claim)

		require.False(t, verdict.Valid)
		require.True(t, verdict.Flags.Has(anticheat.FlagInvalidShotData))
	})

	t.Run("missing shooter id is structurally invalid", func(t *testing.T) {
		h := newHarness(ballistics.EmptyWorld{})
		claim := baseClaim()
		claim.ShooterID = ""
		verdict := h.resolver.Resolve(claim)

		require.False(t, verdict.Valid)
		require.True(t, verdict.Flags.Has(anticheat.FlagInvalidShotData))
	})
}

func Test_Resolve_Rewind(t *testing.T) {
	t.Run("rewound target is hittable where it used to be", func(t *testing.T) {
		h := newHarness(ballistics.EmptyWorld{})

		h.clock.now = 99.0
		h.tracker.Record("victim", mgl64.Vec3{10, 0, 0}, mgl64.Vec3{10, 0, 0}, 99.0, 0)
		h.clock.now = 100.0
		h.tracker.Record("victim", mgl64.Vec3{20, 0, 0}, mgl64.Vec3{10, 0, 0}, 100.0, 0)

		claim := baseClaim()
		claim.TargetEntityID = "victim"
		claim.ClientTime = 99.5
		claim.DeclaredTarget = mgl64.Vec3{15, 0, 0}

		verdict := h.resolver.Resolve(claim)
		require.True(t, verdict.Valid)
		require.Equal(t, BodyPartTorso, verdict.BodyPart)
		require.Equal(t, uint32(35), verdict.Damage)
		// Sphere hit at x=15 with the default hitbox radius.
		require.InDelta(t, 15.0-0.9, verdict.Distance, 1e-6)
	})

	t.Run("failed rewind falls back to the live world", func(t *testing.T) {
		h := newHarness(ballistics.EmptyWorld{})
		claim := baseClaim()
		claim.TargetEntityID = "ghost"
		claim.ClientTime = 99.5

		verdict := h.resolver.Resolve(claim)
		require.True(t, verdict.Valid)
		require.Equal(t, uint32(0), verdict.Damage)
		require.False(t, verdict.Flags.Has(anticheat.FlagNoHistory))
	})
}

func Test_Resolve_Idempotence(t *testing.T) {
	h := newHarness(&staticWorld{hit: &ballistics.RayHit{
		ObjectID:      "victim/limb",
		Position:      mgl64.Vec3{10, 0, 0},
		IsEntity:      true,
		OwnerEntityID: "victim",
	}})
	claim := baseClaim()

	first := h.resolver.Resolve(claim)
	second := h.resolver.Resolve(claim)
	require.Equal(t, first, second)
	require.Equal(t, uint32(20), first.Damage)
}

// panicWorld stands in for a faulty adapter behind the World port.
type panicWorld struct{}

func (panicWorld) Raycast(_, _ mgl64.Vec3, _ float64, _ map[string]struct{}) (*ballistics.RayHit, error) {
	panic("adapter fault")
}

func Test_Resolve_WorldPanicReleasesShooterLock(t *testing.T) {
	h := newHarness(panicWorld{})

	require.Panics(t, func() { h.resolver.Resolve(baseClaim()) })
	// The same shooter must be able to reacquire its lock afterward; a
	// stranded lock would hang this second claim.
	require.Panics(t, func() { h.resolver.Resolve(baseClaim()) })
}

func Test_PruneShooters_TombstonesRemovedState(t *testing.T) {
	h := newHarness(ballistics.EmptyWorld{})
	h.resolver.Resolve(baseClaim())
	orphan := h.resolver.shooter("shooter")

	h.clock.now += 300
	require.Equal(t, 1, h.resolver.PruneShooters(120))
	require.True(t, orphan.gone)

	// A claim arriving with the pruned pointer in hand lands in fresh state.
	fresh := h.resolver.lockShooter("shooter")
	fresh.mu.Unlock()
	require.NotSame(t, orphan, fresh)
}

func Test_Resolve_Concurrency(t *testing.T) {
	// Claims from distinct shooters share no mutable state; hammer the
	// resolver from many goroutines to give the race detector material.
	h := newHarness(ballistics.EmptyWorld{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			claim := baseClaim()
			claim.ShooterID = fmt.Sprintf("shooter-%d", id)
			for j := 0; j < 50; j++ {
				claim.ClaimID = fmt.Sprintf("c-%d-%d", id, j)
				h.resolver.Resolve(claim)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, uint64(16*50), h.resolver.TotalShots())
}

func Test_Resolve_Stats(t *testing.T) {
	h := newHarness(ballistics.EmptyWorld{})

	h.resolver.Resolve(baseClaim())
	bad := baseClaim()
	bad.WeaponID = "bfg"
	h.resolver.Resolve(bad)

	require.Equal(t, uint64(2), h.resolver.TotalShots())
	require.InDelta(t, 0.5, h.resolver.SuccessRate(), 1e-9)
}

func Test_ClassifyHitbox(t *testing.T) {
	require.Equal(t, BodyPartHead, ClassifyHitbox("p1/head"))
	require.Equal(t, BodyPartTorso, ClassifyHitbox("p1/torso"))
	require.Equal(t, BodyPartLimb, ClassifyHitbox("p1/left_arm"))
	require.Equal(t, BodyPartNone, ClassifyHitbox("crate"))
	// Precedence when an id matches several hitboxes.
	require.Equal(t, BodyPartHead, ClassifyHitbox("p1/head_armor_torso"))
}
