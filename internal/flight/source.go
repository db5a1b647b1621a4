// Package flight defines the boundary to a push-style flight telemetry
// source: something that can be connected to once, reports its connection
// state, accepts best-effort update-rate requests, and pushes live position,
// attitude and battery values over independent streams.
//
// The ingestion layer consumes this interface; implementations live behind it
// (the built-in simulator in [github.com/helios-aero/telemd/internal/flight/sim],
// test fakes, or an out-of-tree autopilot client).
package flight

import "context"

// ConnectionState is one notification from the source's connection-state
// stream. Sources emit it repeatedly, heartbeat style.
type ConnectionState struct {
	IsConnected bool
}

// PositionUpdate is one raw position sample in degrees and meters.
type PositionUpdate struct {
	LatitudeDeg       float64
	LongitudeDeg      float64
	AbsoluteAltitudeM float64
	RelativeAltitudeM float64
}

// AttitudeUpdate is one raw attitude sample in degrees.
type AttitudeUpdate struct {
	RollDeg  float64
	PitchDeg float64
	YawDeg   float64
}

// BatteryUpdate is one raw battery sample: volts and a 0..1 remaining fraction.
type BatteryUpdate struct {
	VoltageV         float64
	RemainingPercent float64
}

// RateMetric names a telemetry stream whose update rate can be requested
// via [Source.SetRate].
type RateMetric string

// Metrics accepted by SetRate.
const (
	RatePosition    RateMetric = "position"
	RateBattery     RateMetric = "battery"
	RateAttitude    RateMetric = "attitude"
	RateVelocity    RateMetric = "velocity"
	RateGPSInfo     RateMetric = "gps_info"
	RateHome        RateMetric = "home"
	RateInAir       RateMetric = "in_air"
	RateLandedState RateMetric = "landed_state"
)

// Source is a push-style telemetry source.
//
// The value-stream methods return receive-only channels. A channel is closed
// when the passed context is cancelled or when the underlying stream faults;
// consumers treat closure as end of stream. Implementations must support
// concurrent consumption of all streams after a single Connect.
type Source interface {
	// Connect establishes the link to the vehicle at the given address.
	Connect(ctx context.Context, address string) error

	// ConnectionState returns a stream of repeated connection-state
	// notifications. The first notification with IsConnected true signals
	// that the vehicle is reachable.
	ConnectionState(ctx context.Context) <-chan ConnectionState

	// SetRate requests an update rate for one metric. Best effort: an error
	// means the source keeps its default cadence for that metric.
	SetRate(metric RateMetric, hz float64) error

	// Position streams live position samples.
	Position(ctx context.Context) <-chan PositionUpdate

	// Attitude streams live attitude samples.
	Attitude(ctx context.Context) <-chan AttitudeUpdate

	// Battery streams live battery samples.
	Battery(ctx context.Context) <-chan BatteryUpdate
}
