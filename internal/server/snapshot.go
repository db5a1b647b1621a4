package server

import "github.com/helios-aero/telemd/internal/state"

// Snapshot readers: stateless point-in-time queries over the store, shared
// by the REST handlers. Each returns a fresh map the caller owns.

// telemetrySnapshot is the full on-demand snapshot: all three telemetry
// groups plus the update timestamp.
func telemetrySnapshot(st *state.Store) map[string]any {
	return st.Get(state.KeyPosition, state.KeyAttitude, state.KeyBattery, state.KeyLastUpdated)
}

// groupSnapshot is a single-group snapshot.
func groupSnapshot(st *state.Store, key state.Key) map[string]any {
	return st.Get(key)
}

// statusSnapshot merges the live connection flags with the static
// configuration supplied at construction.
func statusSnapshot(st *state.Store, info StatusInfo) map[string]any {
	snap := st.Get(
		state.KeyConnected, state.KeyConnecting,
		state.KeyStartedAt, state.KeyLastUpdated, state.KeyFault,
	)
	snap["backend"] = info.Backend
	snap["source_address"] = info.SourceAddress
	snap["push_rate_hz"] = info.PushRateHz
	return snap
}
