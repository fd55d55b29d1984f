package static

import "github.com/pkg/errors"

// Options configure how a Module is compiled and how its runtimes manage memory.
// Each knob is independently togglable; the zero value disables everything, use
// DefaultOptions for the recommended configuration.
type Options struct {
	// CleanupActivations releases temporary storage in bulk at the end of each execution,
	// rather than caching it indefinitely inside the runtime. Required for bounded
	// steady-state memory.
	CleanupActivations bool

	// EnableOutVariant makes instructions write directly into planner-managed output storage
	// instead of producing freshly allocated results. Memory reuse requires it.
	EnableOutVariant bool

	// OptimizeMemory computes non-overlapping live ranges among non-escaping outputs and
	// assigns aliasing-permitted sets to shared storage, reducing peak footprint.
	// Requires EnableOutVariant.
	OptimizeMemory bool

	// OptimizeGraphOutputMemory also plans storage for values that become graph outputs.
	// Ownership of that storage transfers to the caller, and the planner will not reclaim it
	// during the call -- but it WILL reuse it on the next call: the caller must copy the
	// outputs out before running the same Runtime again. Requires EnableOutVariant.
	// Off by default because the output lifetime then escapes planner control.
	OptimizeGraphOutputMemory bool
}

// DefaultOptions returns the recommended configuration: batched cleanup, out-variant
// execution and live-range memory reuse, without graph-output planning.
func DefaultOptions() Options {
	return Options{
		CleanupActivations: true,
		EnableOutVariant:   true,
		OptimizeMemory:     true,
	}
}

// validate checks the inter-option requirements.
func (o Options) validate() error {
	if o.OptimizeMemory && !o.EnableOutVariant {
		return errors.New("Options.OptimizeMemory requires Options.EnableOutVariant")
	}
	if o.OptimizeGraphOutputMemory && !o.EnableOutVariant {
		return errors.New("Options.OptimizeGraphOutputMemory requires Options.EnableOutVariant")
	}
	return nil
}
