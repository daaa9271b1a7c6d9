// Package api
// Author: momentics
//
// Live introspection of pool and channel state.

package api

// Debug exposes runtime introspection probes.
type Debug interface {
	// DumpState evaluates every registered probe.
	DumpState() map[string]any

	// RegisterProbe installs or replaces a named probe.
	RegisterProbe(name string, fn func() any)
}
