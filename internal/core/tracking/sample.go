package tracking

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/ricochet-gg/ricochet/internal/core/anticheat"
)

// Sample is one observed position/velocity report for an entity. Immutable
// once recorded; owned exclusively by the entity's history.
type Sample struct {
	Position   mgl64.Vec3
	Velocity   mgl64.Vec3
	ClientTime float64
	ServerTime float64
	Latency    float64
}

// effectiveTime is the instant the sample most plausibly describes: the
// server arrival time shifted back by half the measured round trip.
func (s Sample) effectiveTime() float64 {
	return s.ServerTime - s.Latency/2
}

// CompensationResult is the outcome of rewinding an entity to a past instant.
// Pure value, never stored.
type CompensationResult struct {
	Position   mgl64.Vec3
	Velocity   mgl64.Vec3
	LeadTime   float64
	Valid      bool
	Confidence float64
	Flags      anticheat.FlagSet
}
