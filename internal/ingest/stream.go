package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/helios-aero/telemd/internal/flight"
	"github.com/helios-aero/telemd/internal/metrics"
	"github.com/helios-aero/telemd/internal/state"
)

// ErrConnectTimeout is returned by the stream adapter when the source never
// reports a connection within the configured timeout. The failure is terminal
// for the adapter instance: there is no retry within the same process run.
var ErrConnectTimeout = errors.New("no heartbeat received within connect timeout")

// defaultSettleDelay gives the source a moment between rate negotiation and
// stream consumption; autopilot stacks need a warm-up before values flow.
const defaultSettleDelay = 2 * time.Second

// StreamConfig configures a [StreamAdapter].
type StreamConfig struct {
	// Address of the vehicle, passed to the source verbatim.
	Address string

	// ConnectTimeout bounds the wait for the first IsConnected notification.
	ConnectTimeout time.Duration

	// TelemetryRateHz is requested for the position, battery, attitude,
	// velocity and GPS-info streams. Home/in-air/landed-state are always
	// requested at 1 Hz.
	TelemetryRateHz float64

	// SettleDelay overrides the post-negotiation warm-up. Zero means the
	// default of 2s; tests set it to a negligible value.
	SettleDelay time.Duration
}

// StreamAdapter ingests telemetry from a push-style [flight.Source].
//
// Lifecycle: connect, wait for a heartbeat (bounded), negotiate update rates
// (best effort), then run one producer loop per value stream. A connect
// timeout is terminal. A stream that ends after a successful connect is not
// retried either, but the failure is made observable: the store is patched
// disconnected with a fault description that surfaces on /status.
type StreamAdapter struct {
	source  flight.Source
	cfg     StreamConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewStreamAdapter creates a stream adapter over the given source.
func NewStreamAdapter(source flight.Source, cfg StreamConfig, m *metrics.Metrics, logger *slog.Logger) *StreamAdapter {
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	return &StreamAdapter{source: source, cfg: cfg, metrics: m, logger: logger}
}

// Run implements [Adapter].
func (a *StreamAdapter) Run(ctx context.Context, st *state.Store) error {
	st.Apply(state.Patch{Connecting: boolPtr(true), Connected: boolPtr(false)})

	if err := a.source.Connect(ctx, a.cfg.Address); err != nil {
		st.Apply(state.Patch{Connecting: boolPtr(false), Connected: boolPtr(false)})
		return fmt.Errorf("connect to %s: %w", a.cfg.Address, err)
	}

	a.logger.Info("waiting for vehicle heartbeat",
		"address", a.cfg.Address,
		"timeout", a.cfg.ConnectTimeout.String(),
	)

	if err := a.waitForConnection(ctx); err != nil {
		st.Apply(state.Patch{Connecting: boolPtr(false), Connected: boolPtr(false)})
		if errors.Is(err, ErrConnectTimeout) {
			a.logConnectDiagnostics()
		}
		return err
	}

	now := time.Now().UTC()
	st.Apply(state.Patch{
		Connecting: boolPtr(false),
		Connected:  boolPtr(true),
		StartedAt:  &now,
	})
	a.logger.Info("vehicle connected, negotiating telemetry rates",
		"rate_hz", a.cfg.TelemetryRateHz,
	)

	a.negotiateRates()

	select {
	case <-time.After(a.cfg.SettleDelay):
	case <-ctx.Done():
		return nil
	}
	a.logger.Info("streaming telemetry")

	return a.consumeStreams(ctx, st)
}

// waitForConnection blocks until the source reports IsConnected or the
// timeout elapses.
func (a *StreamAdapter) waitForConnection(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.ConnectTimeout)
	defer cancel()

	states := a.source.ConnectionState(waitCtx)
	for {
		select {
		case cs, ok := <-states:
			if !ok {
				// sources close the state stream on cancellation too, so
				// only an unexpired deadline means the source gave up early
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if waitCtx.Err() != nil {
					return ErrConnectTimeout
				}
				return errors.New("connection state stream closed before the first heartbeat")
			}
			if cs.IsConnected {
				return nil
			}
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrConnectTimeout
		}
	}
}

// logConnectDiagnostics emits actionable hints after a heartbeat timeout,
// distinguishing serial devices from network endpoints.
func (a *StreamAdapter) logConnectDiagnostics() {
	if strings.HasPrefix(a.cfg.Address, "serial") {
		a.logger.Error("no heartbeat received; check the serial link",
			"address", a.cfg.Address,
			"hint_1", "check that the flight controller is powered and the USB cable is connected",
			"hint_2", "verify the serial device exists (ls /dev/ttyACM* /dev/ttyUSB*)",
			"hint_3", "check the baud rate; common values are 57600, 115200, 921600",
		)
		return
	}
	a.logger.Error("no heartbeat received; check the network link",
		"address", a.cfg.Address,
		"hint_1", "add a UDP telemetry output towards this host in your ground station",
		"hint_2", "try a different port (14550, 14540, 14551)",
		"hint_3", "make sure the vehicle or SITL is up before starting telemd",
	)
}

// negotiateRates requests explicit update rates for every metric. Failures
// are logged and ignored: the source then keeps its default push cadence.
func (a *StreamAdapter) negotiateRates() {
	requests := []struct {
		metric flight.RateMetric
		hz     float64
	}{
		{flight.RatePosition, a.cfg.TelemetryRateHz},
		{flight.RateBattery, a.cfg.TelemetryRateHz},
		{flight.RateAttitude, a.cfg.TelemetryRateHz},
		{flight.RateVelocity, a.cfg.TelemetryRateHz},
		{flight.RateGPSInfo, a.cfg.TelemetryRateHz},
		{flight.RateHome, 1},
		{flight.RateInAir, 1},
		{flight.RateLandedState, 1},
	}

	for _, req := range requests {
		if err := a.source.SetRate(req.metric, req.hz); err != nil {
			a.logger.Warn("could not set telemetry rate, keeping source default",
				"metric", string(req.metric),
				"requested_hz", req.hz,
				"error", err,
			)
		}
	}
}

// consumeStreams runs the three producer loops and supervises them. The
// first loop to end while the process is still running marks the run as
// faulted and cancels the survivors.
func (a *StreamAdapter) consumeStreams(ctx context.Context, st *state.Store) error {
	// the producers get their own context so a fault in one stream stops
	// the others too; a faulted run must not keep patching the store
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ended := make(chan string, 3)

	go func() {
		for pos := range a.source.Position(streamCtx) {
			st.Apply(state.Patch{Position: &state.Position{
				LatitudeDeg:       state.Float(round(pos.LatitudeDeg, 7)),
				LongitudeDeg:      state.Float(round(pos.LongitudeDeg, 7)),
				AbsoluteAltitudeM: state.Float(round(pos.AbsoluteAltitudeM, 2)),
				RelativeAltitudeM: state.Float(round(pos.RelativeAltitudeM, 2)),
			}})
			a.metrics.FramesIngested.WithLabelValues("position").Inc()
		}
		ended <- "position"
	}()

	go func() {
		for att := range a.source.Attitude(streamCtx) {
			st.Apply(state.Patch{Attitude: &state.Attitude{
				RollDeg:  state.Float(round(att.RollDeg, 2)),
				PitchDeg: state.Float(round(att.PitchDeg, 2)),
				YawDeg:   state.Float(round(att.YawDeg, 2)),
			}})
			a.metrics.FramesIngested.WithLabelValues("attitude").Inc()
		}
		ended <- "attitude"
	}()

	go func() {
		for bat := range a.source.Battery(streamCtx) {
			st.Apply(state.Patch{Battery: &state.Battery{
				VoltageV:         state.Float(round(bat.VoltageV, 2)),
				RemainingPercent: state.Float(round(bat.RemainingPercent, 4)),
			}})
			a.metrics.FramesIngested.WithLabelValues("battery").Inc()
		}
		ended <- "battery"
	}()

	select {
	case name := <-ended:
		if ctx.Err() != nil {
			return nil
		}
		fault := fmt.Sprintf("%s stream ended unexpectedly", name)
		a.logger.Error("telemetry stream fault, ingestion stopped", "stream", name)
		st.Apply(state.Patch{
			Connected: boolPtr(false),
			Fault:     &fault,
		})
		return errors.New(fault)
	case <-ctx.Done():
		return nil
	}
}

// round rounds v to the given number of decimal places.
func round(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(v*scale) / scale
}

func boolPtr(b bool) *bool {
	return &b
}
