package anticheat

import "strings"

// Flag identifies one detected anomaly. Flags accumulate on verdicts and
// compensation results as a FlagSet; the severity table below decides whether
// an accumulated set still allows a valid verdict.
type Flag uint32

const (
	// Movement flags raised by the position validator.

	FlagTeleportation Flag = 1 << iota
	FlagExcessiveVelocity
	FlagExcessiveAcceleration

	// Compensation flags.

	FlagNoHistory
	FlagPlayerFlagged
	FlagFutureTimestamp
	FlagCompensationWindowExceeded
	FlagNumericalInstability
	FlagLowConfidenceRewind

	// Shot claim flags.

	FlagInvalidShotData
	FlagInvalidWeapon
	FlagRateLimitExceeded
	FlagFireIntervalViolation
	FlagAimAngleDeviation
	FlagTrajectoryMismatch
	FlagRangeExceeded
	FlagWorldQueryFault
)

var flagNames = map[Flag]string{
	FlagTeleportation:              "TELEPORTATION_DETECTED",
	FlagExcessiveVelocity:          "EXCESSIVE_VELOCITY",
	FlagExcessiveAcceleration:      "EXCESSIVE_ACCELERATION",
	FlagNoHistory:                  "NO_HISTORY",
	FlagPlayerFlagged:              "PLAYER_FLAGGED",
	FlagFutureTimestamp:            "FUTURE_TIMESTAMP",
	FlagCompensationWindowExceeded: "COMPENSATION_WINDOW_EXCEEDED",
	FlagNumericalInstability:       "NUMERICAL_INSTABILITY",
	FlagLowConfidenceRewind:        "LOW_CONFIDENCE_REWIND",
	FlagInvalidShotData:            "INVALID_SHOT_DATA",
	FlagInvalidWeapon:              "INVALID_WEAPON",
	FlagRateLimitExceeded:          "RATE_LIMIT_EXCEEDED",
	FlagFireIntervalViolation:      "FIRE_INTERVAL_VIOLATION",
	FlagAimAngleDeviation:          "AIM_ANGLE_DEVIATION",
	FlagTrajectoryMismatch:         "TRAJECTORY_MISMATCH",
	FlagRangeExceeded:              "RANGE_EXCEEDED",
	FlagWorldQueryFault:            "WORLD_QUERY_FAULT",
}

// criticalFlags is the authoritative severity table: any flag listed here
// forces the verdict invalid. Everything else is minor and only recorded.
const criticalFlags = FlagTeleportation |
	FlagExcessiveVelocity |
	FlagPlayerFlagged |
	FlagInvalidShotData |
	FlagInvalidWeapon |
	FlagTrajectoryMismatch |
	FlagRangeExceeded |
	FlagWorldQueryFault

func (f Flag) String() string {
	if name, ok := flagNames[f]; ok {
		return name
	}
	return "UNKNOWN_FLAG"
}

// Critical reports whether the flag invalidates a verdict on its own.
func (f Flag) Critical() bool {
	return f&criticalFlags != 0
}

// FlagSet is a set of Flags packed into a bitmask.
type FlagSet uint32

func (s FlagSet) Has(f Flag) bool {
	return uint32(s)&uint32(f) != 0
}

func (s *FlagSet) Add(f Flag) {
	*s |= FlagSet(f)
}

func (s *FlagSet) Merge(other FlagSet) {
	*s |= other
}

func (s FlagSet) Empty() bool {
	return s == 0
}

// HasCritical reports whether any flag in the set is in the severity table.
func (s FlagSet) HasCritical() bool {
	return uint32(s)&uint32(criticalFlags) != 0
}

// Dominant returns the first critical flag in the set, or the first flag at
// all when none is critical. Zero when the set is empty.
func (s FlagSet) Dominant() Flag {
	var first Flag
	for f := Flag(1); f != 0 && f <= FlagWorldQueryFault; f <<= 1 {
		if !s.Has(f) {
			continue
		}
		if f.Critical() {
			return f
		}
		if first == 0 {
			first = f
		}
	}
	return first
}

// Names returns the string names of all flags in the set, in declaration
// order. Used for logging and threat evidence.
func (s FlagSet) Names() []string {
	if s == 0 {
		return nil
	}
	names := make([]string, 0, 4)
	for f := Flag(1); f != 0 && f <= FlagWorldQueryFault; f <<= 1 {
		if s.Has(f) {
			names = append(names, f.String())
		}
	}
	return names
}

func (s FlagSet) String() string {
	return strings.Join(s.Names(), "|")
}
