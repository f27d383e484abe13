package resolver

import (
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ricochet-gg/ricochet/internal/core/anticheat"
	"github.com/ricochet-gg/ricochet/internal/core/ballistics"
)

// Claim is a client's assertion that it fired a shot. Never mutated.
type Claim struct {
	ClaimID   string
	ShooterID string
	WeaponID  string

	Origin    mgl64.Vec3
	Direction mgl64.Vec3 // should be unit length
	// DeclaredTarget is the world point the client claims it aimed at.
	DeclaredTarget mgl64.Vec3
	// TargetEntityID optionally names the entity the shooter believes it
	// hit, enabling the rewind-then-raycast path.
	TargetEntityID string

	ClientTime float64
}

// BodyPart classifies which hitbox a shot landed on.
type BodyPart uint8

const (
	BodyPartNone BodyPart = iota
	BodyPartHead
	BodyPartTorso
	BodyPartLimb
)

func (p BodyPart) String() string {
	switch p {
	case BodyPartHead:
		return "head"
	case BodyPartTorso:
		return "torso"
	case BodyPartLimb:
		return "limb"
	default:
		return "none"
	}
}

// ClassifyHitbox maps a struck sub-object ID to a body part. Sub-objects
// follow the "<entity>/<hitbox>" convention; precedence is Head > Torso >
// Limb when an ID matches several.
func ClassifyHitbox(objectID string) BodyPart {
	id := strings.ToLower(objectID)
	switch {
	case strings.Contains(id, "head"):
		return BodyPartHead
	case strings.Contains(id, "torso"), strings.Contains(id, "chest"), strings.Contains(id, "body"):
		return BodyPartTorso
	case strings.Contains(id, "limb"), strings.Contains(id, "arm"), strings.Contains(id, "leg"):
		return BodyPartLimb
	default:
		return BodyPartNone
	}
}

// Checks records which validation stages passed. Every stage runs regardless
// of earlier failures, so a verdict always carries the complete picture.
type Checks struct {
	Range      bool
	Trajectory bool
	Speed      bool
	Angle      bool
	Rate       bool
}

// Verdict is the single authoritative outcome for one claim. Immutable.
type Verdict struct {
	ClaimID    string
	Valid      bool
	Damage     uint32
	BodyPart   BodyPart
	Penetrated []ballistics.Material
	Distance   float64
	ServerTime float64
	Checks     Checks
	Flags      anticheat.FlagSet
}
