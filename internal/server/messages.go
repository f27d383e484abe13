package server

import "encoding/json"

// Envelope frames every WebSocket message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message types.
const (
	TypePosition = "position"
	TypeShot     = "shot"
	TypeVerdict  = "verdict"
	TypeFlags    = "flags"
	TypeError    = "error"
)

// PositionUpdate is one client position report.
type PositionUpdate struct {
	EntityID   string     `json:"entity_id"`
	Position   [3]float64 `json:"position"`
	Velocity   [3]float64 `json:"velocity"`
	ClientTime float64    `json:"client_time"`
	Latency    float64    `json:"latency"`
}

// ShotRequest is one shot claim as sent over the wire.
type ShotRequest struct {
	ClaimID        string     `json:"claim_id"`
	ShooterID      string     `json:"shooter_id"`
	WeaponID       string     `json:"weapon_id"`
	Origin         [3]float64 `json:"origin"`
	Direction      [3]float64 `json:"direction"`
	DeclaredTarget [3]float64 `json:"declared_target"`
	TargetEntityID string     `json:"target_entity_id,omitempty"`
	ClientTime     float64    `json:"client_time"`
}

// VerdictResponse is the client-visible outcome. Exploit flags and check
// detail deliberately stay server side.
type VerdictResponse struct {
	ClaimID  string  `json:"claim_id"`
	Valid    bool    `json:"valid"`
	Hit      bool    `json:"hit"`
	Damage   uint32  `json:"damage"`
	BodyPart string  `json:"body_part"`
	Distance float64 `json:"distance"`
}

// FlagsResponse acknowledges a position update. Movement flags are reported
// back only as a count so clients cannot probe detection thresholds.
type FlagsResponse struct {
	Accepted bool `json:"accepted"`
}

// ErrorResponse reports a malformed message.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatsResponse is served on the HTTP stats endpoint.
type StatsResponse struct {
	TotalShots         uint64  `json:"total_shots"`
	TotalCompensations uint64  `json:"total_compensations"`
	SuccessRate        float64 `json:"success_rate"`
	FlaggedEntities    int64   `json:"flagged_entities"`
}
