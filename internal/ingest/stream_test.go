package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/helios-aero/telemd/internal/flight"
	"github.com/helios-aero/telemd/internal/metrics"
	"github.com/helios-aero/telemd/internal/state"
)

// fakeSource is a scriptable flight.Source for adapter tests. The test owns
// the raw stream channels; the source forwards them with context awareness,
// matching the Source contract (channels close on cancel or stream end).
type fakeSource struct {
	connectErr error
	rateErr    error

	// connection states replayed to the adapter; the state stream then
	// stays open (silent) until the context ends, unless closeStates asks
	// for an early close.
	states      []flight.ConnectionState
	closeStates bool

	pos chan flight.PositionUpdate
	att chan flight.AttitudeUpdate
	bat chan flight.BatteryUpdate

	mu        sync.Mutex
	rateCalls []flight.RateMetric
}

func newFakeSource(states ...flight.ConnectionState) *fakeSource {
	return &fakeSource{
		states: states,
		pos:    make(chan flight.PositionUpdate, 8),
		att:    make(chan flight.AttitudeUpdate, 8),
		bat:    make(chan flight.BatteryUpdate, 8),
	}
}

func (f *fakeSource) Connect(ctx context.Context, address string) error {
	return f.connectErr
}

func (f *fakeSource) ConnectionState(ctx context.Context) <-chan flight.ConnectionState {
	ch := make(chan flight.ConnectionState)
	go func() {
		defer close(ch)
		for _, s := range f.states {
			select {
			case ch <- s:
			case <-ctx.Done():
				return
			}
		}
		if f.closeStates {
			return
		}
		<-ctx.Done()
	}()
	return ch
}

func (f *fakeSource) SetRate(metric flight.RateMetric, hz float64) error {
	f.mu.Lock()
	f.rateCalls = append(f.rateCalls, metric)
	f.mu.Unlock()
	return f.rateErr
}

func (f *fakeSource) Position(ctx context.Context) <-chan flight.PositionUpdate {
	return forward(ctx, f.pos)
}

func (f *fakeSource) Attitude(ctx context.Context) <-chan flight.AttitudeUpdate {
	return forward(ctx, f.att)
}

func (f *fakeSource) Battery(ctx context.Context) <-chan flight.BatteryUpdate {
	return forward(ctx, f.bat)
}

func (f *fakeSource) rateCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rateCalls)
}

func forward[T any](ctx context.Context, in chan T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case v, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}

func streamConfig() StreamConfig {
	return StreamConfig{
		Address:         "udpin://0.0.0.0:14551",
		ConnectTimeout:  100 * time.Millisecond,
		TelemetryRateHz: 2,
		SettleDelay:     time.Millisecond,
	}
}

func TestStreamAdapter_ConnectTimeout(t *testing.T) {
	src := newFakeSource(flight.ConnectionState{IsConnected: false})
	st := state.NewStore()
	a := NewStreamAdapter(src, streamConfig(), metrics.New(), testLogger())

	err := a.Run(context.Background(), st)
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("Run() error = %v, want ErrConnectTimeout", err)
	}

	snap := st.Get(state.KeyConnected, state.KeyConnecting)
	if snap["connected"] != false || snap["connecting"] != false {
		t.Errorf("after timeout: connected=%v connecting=%v, want false/false",
			snap["connected"], snap["connecting"])
	}
	if n := src.rateCallCount(); n != 0 {
		t.Errorf("SetRate called %d times before connection, want 0", n)
	}
}

func TestStreamAdapter_ConnectError(t *testing.T) {
	src := newFakeSource()
	src.connectErr = errors.New("address unreachable")
	st := state.NewStore()
	a := NewStreamAdapter(src, streamConfig(), metrics.New(), testLogger())

	if err := a.Run(context.Background(), st); err == nil {
		t.Fatal("Run() error = nil, want connect error")
	}
	if st.Get(state.KeyConnected)["connected"] != false {
		t.Error("connected = true after failed connect")
	}
}

func TestStreamAdapter_StreamsAndRounds(t *testing.T) {
	src := newFakeSource(flight.ConnectionState{IsConnected: true})
	st := state.NewStore()
	a := NewStreamAdapter(src, streamConfig(), metrics.New(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, st) }()

	waitFor(t, time.Second, func() bool {
		return st.Get(state.KeyConnected)["connected"] == true
	}, "store never marked connected")

	if got := st.Get(state.KeyStartedAt)["started_at"].(*time.Time); got == nil {
		t.Error("started_at = nil after connect")
	}
	waitFor(t, time.Second, func() bool { return src.rateCallCount() == 8 }, "rate negotiation incomplete")

	src.pos <- flight.PositionUpdate{
		LatitudeDeg:       34.05220171234,
		LongitudeDeg:      -118.24368424321,
		AbsoluteAltitudeM: 125.4321,
		RelativeAltitudeM: 42.105,
	}
	src.att <- flight.AttitudeUpdate{RollDeg: 1.2345, PitchDeg: -0.4567, YawDeg: 178.904}
	src.bat <- flight.BatteryUpdate{VoltageV: 12.4321, RemainingPercent: 0.87654321}

	waitFor(t, time.Second, func() bool {
		bat := st.Get(state.KeyBattery)["battery"].(state.Battery)
		return bat.VoltageV != nil
	}, "battery update never applied")
	waitFor(t, time.Second, func() bool {
		pos := st.Get(state.KeyPosition)["position"].(state.Position)
		return pos.LatitudeDeg != nil
	}, "position update never applied")
	waitFor(t, time.Second, func() bool {
		att := st.Get(state.KeyAttitude)["attitude"].(state.Attitude)
		return att.RollDeg != nil
	}, "attitude update never applied")

	pos := st.Get(state.KeyPosition)["position"].(state.Position)
	if got := *pos.LatitudeDeg; got != 34.0522017 {
		t.Errorf("latitude_deg = %v, want 34.0522017 (7dp)", got)
	}
	if got := *pos.LongitudeDeg; got != -118.2436842 {
		t.Errorf("longitude_deg = %v, want -118.2436842 (7dp)", got)
	}
	if got := *pos.AbsoluteAltitudeM; got != 125.43 {
		t.Errorf("absolute_altitude_m = %v, want 125.43 (2dp)", got)
	}

	att := st.Get(state.KeyAttitude)["attitude"].(state.Attitude)
	if got := *att.RollDeg; got != 1.23 {
		t.Errorf("roll_deg = %v, want 1.23 (2dp)", got)
	}

	bat := st.Get(state.KeyBattery)["battery"].(state.Battery)
	if got := *bat.VoltageV; got != 12.43 {
		t.Errorf("voltage_v = %v, want 12.43 (2dp)", got)
	}
	if got := *bat.RemainingPercent; got != 0.8765 {
		t.Errorf("remaining_percent = %v, want 0.8765 (4dp)", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() after cancel = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestStreamAdapter_RateFailureIsOnlyAWarning(t *testing.T) {
	src := newFakeSource(flight.ConnectionState{IsConnected: true})
	src.rateErr = errors.New("rate setting unsupported")
	st := state.NewStore()
	a := NewStreamAdapter(src, streamConfig(), metrics.New(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, st) }()

	src.att <- flight.AttitudeUpdate{RollDeg: 3.0}
	waitFor(t, time.Second, func() bool {
		att := st.Get(state.KeyAttitude)["attitude"].(state.Attitude)
		return att.RollDeg != nil && *att.RollDeg == 3.0
	}, "streaming did not proceed after rate failures")
}

func TestStreamAdapter_MidStreamFaultSurfaces(t *testing.T) {
	src := newFakeSource(flight.ConnectionState{IsConnected: true})
	st := state.NewStore()
	a := NewStreamAdapter(src, streamConfig(), metrics.New(), testLogger())

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), st) }()

	waitFor(t, time.Second, func() bool {
		return st.Get(state.KeyConnected)["connected"] == true
	}, "store never marked connected")

	// a producer stream dying after connect is a fault, not a retry
	close(src.pos)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Run() = nil after stream fault, want error")
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after stream fault")
	}

	snap := st.Get(state.KeyConnected, state.KeyFault)
	if snap["connected"] != false {
		t.Error("connected = true after stream fault, want false")
	}
	fault := snap["fault"].(*string)
	if fault == nil {
		t.Fatal("fault = nil after stream fault, want description")
	}
	if *fault != "position stream ended unexpectedly" {
		t.Errorf("fault = %q, want %q", *fault, "position stream ended unexpectedly")
	}

	// the surviving producers are cancelled with the run: a late update
	// must never reach the store behind a faulted status
	time.Sleep(20 * time.Millisecond)
	src.att <- flight.AttitudeUpdate{RollDeg: 9.9}
	time.Sleep(20 * time.Millisecond)
	att := st.Get(state.KeyAttitude)["attitude"].(state.Attitude)
	if att.RollDeg != nil {
		t.Errorf("attitude applied after fault (roll=%v), want producers stopped", *att.RollDeg)
	}
}

func TestStreamAdapter_StateStreamClosureIsNotATimeout(t *testing.T) {
	src := newFakeSource(flight.ConnectionState{IsConnected: false})
	src.closeStates = true
	st := state.NewStore()
	a := NewStreamAdapter(src, streamConfig(), metrics.New(), testLogger())

	err := a.Run(context.Background(), st)
	if err == nil {
		t.Fatal("Run() error = nil, want source-closed error")
	}
	if errors.Is(err, ErrConnectTimeout) {
		t.Errorf("Run() error = %v, want it distinct from ErrConnectTimeout", err)
	}
	if !strings.Contains(err.Error(), "closed") {
		t.Errorf("Run() error = %v, want mention of the closed state stream", err)
	}

	snap := st.Get(state.KeyConnected, state.KeyConnecting)
	if snap["connected"] != false || snap["connecting"] != false {
		t.Errorf("after closure: connected=%v connecting=%v, want false/false",
			snap["connected"], snap["connecting"])
	}
}
