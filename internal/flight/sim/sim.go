// Package sim provides a simulated flight telemetry source.
//
// The simulator flies a circular pattern around a home point at a gentle
// bank, draining its battery as it goes. It implements [flight.Source] and
// backs the "sim" ingestion backend, which makes the service fully runnable
// without a vehicle or SITL stack.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/helios-aero/telemd/internal/flight"
)

const (
	defaultRateHz      = 5.0
	defaultHomeLat     = 34.0522017
	defaultHomeLon     = -118.2436842
	defaultHomeAltM    = 120.0
	circleRadiusDeg    = 0.0005 // ~55m at the equator
	orbitPeriod        = 60 * time.Second
	fullBatteryV       = 12.6
	emptyBatteryV      = 10.5
	batteryDrainPeriod = 30 * time.Minute
)

// Source is a simulated [flight.Source].
//
// The zero value is not usable; create instances with [New].
type Source struct {
	connectDelay time.Duration
	homeLat      float64
	homeLon      float64

	mu        sync.Mutex
	connected time.Time // zero until Connect succeeds
	rates     map[flight.RateMetric]float64
}

// Option configures the simulator.
type Option func(*Source)

// WithConnectDelay delays the first IsConnected notification, simulating a
// vehicle that takes time to come up (or never does, with a long delay).
func WithConnectDelay(d time.Duration) Option {
	return func(s *Source) { s.connectDelay = d }
}

// WithHome sets the center of the simulated flight pattern.
func WithHome(latDeg, lonDeg float64) Option {
	return func(s *Source) {
		s.homeLat = latDeg
		s.homeLon = lonDeg
	}
}

// New creates a simulator. Without options it connects immediately and emits
// every stream at 5 Hz.
func New(opts ...Option) *Source {
	s := &Source{
		homeLat: defaultHomeLat,
		homeLon: defaultHomeLon,
		rates:   make(map[flight.RateMetric]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect marks the simulator as started. The address is accepted verbatim;
// the simulator has no transport.
func (s *Source) Connect(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected.IsZero() {
		s.connected = time.Now()
	}
	return nil
}

// ConnectionState emits IsConnected=true after the configured connect delay,
// then repeats it once per second as a heartbeat.
func (s *Source) ConnectionState(ctx context.Context) <-chan flight.ConnectionState {
	ch := make(chan flight.ConnectionState, 1)
	go func() {
		defer close(ch)

		if s.connectDelay > 0 {
			select {
			case <-time.After(s.connectDelay):
			case <-ctx.Done():
				return
			}
		}

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case ch <- flight.ConnectionState{IsConnected: true}:
			case <-ctx.Done():
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// SetRate records the requested rate. The simulator honors rates for
// position, attitude and battery; other metrics are accepted and ignored.
func (s *Source) SetRate(metric flight.RateMetric, hz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[metric] = hz
	return nil
}

// Position streams samples along a circular orbit around home.
func (s *Source) Position(ctx context.Context) <-chan flight.PositionUpdate {
	ch := make(chan flight.PositionUpdate)
	go s.emit(ctx, flight.RatePosition, func(elapsed time.Duration) {
		theta := 2 * math.Pi * float64(elapsed) / float64(orbitPeriod)
		relAlt := 40.0 + 2.0*math.Sin(theta/3)
		select {
		case ch <- flight.PositionUpdate{
			LatitudeDeg:       s.homeLat + circleRadiusDeg*math.Sin(theta),
			LongitudeDeg:      s.homeLon + circleRadiusDeg*math.Cos(theta),
			AbsoluteAltitudeM: defaultHomeAltM + relAlt,
			RelativeAltitudeM: relAlt,
		}:
		case <-ctx.Done():
		}
	}, func() { close(ch) })
	return ch
}

// Attitude streams a gentle coordinated bank matching the orbit.
func (s *Source) Attitude(ctx context.Context) <-chan flight.AttitudeUpdate {
	ch := make(chan flight.AttitudeUpdate)
	go s.emit(ctx, flight.RateAttitude, func(elapsed time.Duration) {
		theta := 2 * math.Pi * float64(elapsed) / float64(orbitPeriod)
		yaw := math.Mod(theta*180/math.Pi, 360)
		select {
		case ch <- flight.AttitudeUpdate{
			RollDeg:  8.0 + 1.5*math.Sin(theta*4),
			PitchDeg: 1.0 * math.Sin(theta*2),
			YawDeg:   yaw - 180,
		}:
		case <-ctx.Done():
		}
	}, func() { close(ch) })
	return ch
}

// Battery streams a slow linear drain from full to empty.
func (s *Source) Battery(ctx context.Context) <-chan flight.BatteryUpdate {
	ch := make(chan flight.BatteryUpdate)
	go s.emit(ctx, flight.RateBattery, func(elapsed time.Duration) {
		frac := 1.0 - float64(elapsed)/float64(batteryDrainPeriod)
		if frac < 0 {
			frac = 0
		}
		select {
		case ch <- flight.BatteryUpdate{
			VoltageV:         emptyBatteryV + (fullBatteryV-emptyBatteryV)*frac,
			RemainingPercent: frac,
		}:
		case <-ctx.Done():
		}
	}, func() { close(ch) })
	return ch
}

// emit runs fn at the configured rate for metric until ctx is cancelled,
// then calls done (which closes the stream channel).
func (s *Source) emit(ctx context.Context, metric flight.RateMetric, fn func(elapsed time.Duration), done func()) {
	defer done()

	s.mu.Lock()
	hz := s.rates[metric]
	start := s.connected
	s.mu.Unlock()
	if hz <= 0 {
		hz = defaultRateHz
	}
	if start.IsZero() {
		start = time.Now()
	}

	ticker := time.NewTicker(time.Duration(float64(time.Second) / hz))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn(time.Since(start))
		case <-ctx.Done():
			return
		}
	}
}
