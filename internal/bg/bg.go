// Package bg provides the engine's concurrency primitives.
//
// Runner abstracts the "go func()" decision for fire-and-forget work such as
// usage logging after an HTTP response, so tests can swap in Sync and observe
// side effects deterministically. Pool bounds CPU-bound work (image analysis,
// certificate and CBOR parsing) so it cannot starve I/O-bound requests.
package bg

// Runner is an interface for executing functions, either synchronously or asynchronously.
type Runner interface {
	// Do executes the given function.
	// The implementation determines whether this happens synchronously or asynchronously.
	Do(fn func())
}
