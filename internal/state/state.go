// Package state holds the shared in-memory telemetry state.
//
// The package provides a single [Store] that keeps the latest value of each
// telemetry group (position, attitude, battery) together with connection
// status flags. Exactly one ingestion adapter writes to the store; any number
// of readers (REST handlers, stream sessions) read from it concurrently.
package state

// Key identifies a top-level entry of the telemetry state.
type Key string

// Top-level state keys. The first three are the telemetry groups; the rest
// are connection status fields.
const (
	KeyPosition    Key = "position"
	KeyAttitude    Key = "attitude"
	KeyBattery     Key = "battery"
	KeyConnected   Key = "connected"
	KeyConnecting  Key = "connecting"
	KeyStartedAt   Key = "started_at"
	KeyLastUpdated Key = "last_updated"
	KeyFault       Key = "fault"
)

// TelemetryGroups lists the groups that carry sensor values, in the order
// they appear in snapshots.
var TelemetryGroups = []Key{KeyPosition, KeyAttitude, KeyBattery}

// TelemetryGroup maps a client-supplied name to a telemetry group key.
// It returns false for anything that is not position, attitude or battery,
// including status keys: clients may only filter on sensor groups.
func TelemetryGroup(name string) (Key, bool) {
	switch Key(name) {
	case KeyPosition, KeyAttitude, KeyBattery:
		return Key(name), true
	}
	return "", false
}

// Position is the latest GPS fix. Nil fields mean no value has been received
// yet; absence of data is never encoded as a default number.
type Position struct {
	LatitudeDeg       *float64 `json:"latitude_deg"`
	LongitudeDeg      *float64 `json:"longitude_deg"`
	AbsoluteAltitudeM *float64 `json:"absolute_altitude_m"`
	RelativeAltitudeM *float64 `json:"relative_altitude_m"`
}

// Attitude is the latest vehicle orientation in degrees.
type Attitude struct {
	RollDeg  *float64 `json:"roll_deg"`
	PitchDeg *float64 `json:"pitch_deg"`
	YawDeg   *float64 `json:"yaw_deg"`
}

// Battery is the latest battery reading. RemainingPercent is a 0..1 fraction.
type Battery struct {
	VoltageV         *float64 `json:"voltage_v"`
	RemainingPercent *float64 `json:"remaining_percent"`
}

// Float returns a pointer to v. It keeps patch construction readable at call
// sites that build groups from plain numbers.
func Float(v float64) *float64 {
	return &v
}
