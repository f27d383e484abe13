package tracking

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"

	"github.com/ricochet-gg/ricochet/internal/core/anticheat"
)

// seedTimeline records samples at fixed server times with zero latency, so
// effective timestamps equal server timestamps.
func seedTimeline(store *Store, clock *testClock, entityID string, positions map[float64]mgl64.Vec3, times []float64) {
	for _, ts := range times {
		clock.now = ts
		store.Record(entityID, positions[ts], mgl64.Vec3{1, 0, 0}, ts, 0)
	}
}

func Test_Compensate_Interpolation(t *testing.T) {
	store, clock := newTestStore(testConfig())
	seedTimeline(store, clock, "target", map[float64]mgl64.Vec3{
		99.0:  {0, 0, 0},
		100.0: {10, 0, 0},
	}, []float64{99.0, 100.0})
	clock.now = 100.0

	t.Run("position is exact linear interpolation", func(t *testing.T) {
		result := store.Compensate("target", 99.25)
		require.True(t, result.Valid)
		require.InDelta(t, 2.5, result.Position[0], 1e-9)
		require.InDelta(t, 0, result.Position[1], 1e-9)
		require.InDelta(t, 0.75, result.LeadTime, 1e-9)
	})

	t.Run("confidence peaks at the midpoint and falls toward the edges", func(t *testing.T) {
		mid := store.Compensate("target", 99.5).Confidence
		early := store.Compensate("target", 99.2).Confidence
		earlier := store.Compensate("target", 99.05).Confidence
		require.Greater(t, mid, early)
		require.Greater(t, early, earlier)
	})

	t.Run("round trip at a sample's own timestamp", func(t *testing.T) {
		result := store.Compensate("target", 99.0)
		require.True(t, result.Valid)
		require.Equal(t, mgl64.Vec3{0, 0, 0}, result.Position)
		require.Equal(t, mgl64.Vec3{1, 0, 0}, result.Velocity)
	})

	t.Run("round trip at the newest sample", func(t *testing.T) {
		result := store.Compensate("target", 100.0)
		require.True(t, result.Valid)
		require.Equal(t, mgl64.Vec3{10, 0, 0}, result.Position)
		require.Equal(t, mgl64.Vec3{1, 0, 0}, result.Velocity)
	})

	t.Run("wider sample gaps lower confidence", func(t *testing.T) {
		tight, tightClock := newTestStore(testConfig())
		seedTimeline(tight, tightClock, "t", map[float64]mgl64.Vec3{
			99.0:  {0, 0, 0},
			100.0: {1, 0, 0},
		}, []float64{99.0, 100.0})
		tightClock.now = 100.0

		wide := store.Compensate("target", 99.5).Confidence
		narrow := tight.Compensate("t", 99.5).Confidence
		require.Greater(t, narrow, wide)
	})
}

func Test_Compensate_Extrapolation(t *testing.T) {
	store, clock := newTestStore(testConfig())
	clock.now = 100.0
	store.Record("target", mgl64.Vec3{10, 0, 0}, mgl64.Vec3{2, 0, 0}, 100, 0)
	clock.now = 100.1

	result := store.Compensate("target", 100.05)
	require.True(t, result.Valid)
	require.InDelta(t, 10.1, result.Position[0], 1e-9)
	require.Equal(t, mgl64.Vec3{2, 0, 0}, result.Velocity)
	require.Less(t, result.Confidence, maxExtrapolationConfidence)
	require.Greater(t, result.Confidence, 0.0)
}

func Test_Compensate_Fallback(t *testing.T) {
	store, clock := newTestStore(testConfig())
	clock.now = 100.0
	store.Record("target", mgl64.Vec3{5, 0, 0}, mgl64.Vec3{1, 0, 0}, 100, 0)
	clock.now = 100.5

	// Requested instant predates the only sample: it is returned as-is at
	// low confidence.
	result := store.Compensate("target", 99.8)
	require.True(t, result.Valid)
	require.Equal(t, mgl64.Vec3{5, 0, 0}, result.Position)
	require.Equal(t, fallbackConfidence, result.Confidence)
	require.True(t, result.Flags.Has(anticheat.FlagLowConfidenceRewind))
}

func Test_Compensate_Rejections(t *testing.T) {
	t.Run("future timestamps are rejected, not clamped", func(t *testing.T) {
		store, clock := newTestStore(testConfig())
		clock.now = 100.0
		store.Record("target", mgl64.Vec3{}, mgl64.Vec3{}, 100, 0)

		result := store.Compensate("target", 100.5)
		require.False(t, result.Valid)
		require.True(t, result.Flags.Has(anticheat.FlagFutureTimestamp))
	})

	t.Run("requests beyond the compensation window are rejected", func(t *testing.T) {
		store, clock := newTestStore(testConfig())
		clock.now = 100.0
		store.Record("target", mgl64.Vec3{}, mgl64.Vec3{}, 100, 0)
		clock.now = 102.0

		result := store.Compensate("target", 100.5)
		require.False(t, result.Valid)
		require.True(t, result.Flags.Has(anticheat.FlagCompensationWindowExceeded))
	})

	t.Run("temporal verdicts apply to unknown entities too", func(t *testing.T) {
		store, clock := newTestStore(testConfig())
		clock.now = 100.0

		result := store.Compensate("ghost", 101.0)
		require.False(t, result.Valid)
		require.True(t, result.Flags.Has(anticheat.FlagFutureTimestamp))
		require.True(t, result.Flags.Has(anticheat.FlagNoHistory))
	})

	t.Run("flagged entity fails closed regardless of timestamp", func(t *testing.T) {
		cfg := testConfig()
		cfg.SuspicionLimit = 1
		store, clock := newTestStore(cfg)
		store.Record("cheater", mgl64.Vec3{}, mgl64.Vec3{}, 100, 0)
		clock.now = 100.1
		store.Record("cheater", mgl64.Vec3{1000, 0, 0}, mgl64.Vec3{}, 100.1, 0)

		for _, target := range []float64{100.05, 150.0, -3.0} {
			result := store.Compensate("cheater", target)
			require.False(t, result.Valid)
			require.True(t, result.Flags.Has(anticheat.FlagPlayerFlagged))
			require.Equal(t, "PLAYER_FLAGGED", result.Flags.String())
		}
	})
}

func Test_Compensate_SanityCheck(t *testing.T) {
	cfg := testConfig()
	cfg.SuspicionLimit = 1000 // keep the entity unflagged despite wild input
	store, clock := newTestStore(cfg)

	clock.now = 100.0
	store.Record("glitch", mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1e9, 0, 0}, 100, 0)
	clock.now = 100.2

	result := store.Compensate("glitch", 100.1)
	require.False(t, result.Valid)
	require.True(t, result.Flags.Has(anticheat.FlagNumericalInstability))
	require.Equal(t, 0.0, result.Confidence)
}

func Test_Compensate_CountsRequests(t *testing.T) {
	store, clock := newTestStore(testConfig())
	clock.now = 100.0
	store.Record("target", mgl64.Vec3{}, mgl64.Vec3{}, 100, 0)

	store.Compensate("target", 99.99)
	store.Compensate("target", 150)
	store.Compensate("ghost", 99)
	require.Equal(t, uint64(3), store.Compensations())
}
