// Package speed owns the line-crossing speed estimator.
//
// Responsibilities: side-of-line classification, crossing detection,
// per-track state lifecycle (creation, update, staleness eviction),
// measurement windows between an opening and a closing crossing, EMA
// smoothing of the resulting speed samples, and overlay emission.
// Key types: Engine, Store, TrackState, ReferenceLine, Overlay.
//
// The Engine is synchronous and holds no locks. It must be driven by
// exactly one goroutine, one frame at a time in capture order.
// No SQL, network or rendering code is allowed in this package; those
// collaborators observe the engine through Listener and the returned
// overlays.
package speed
