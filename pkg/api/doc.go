// Package api contains the core building blocks used by the stagegate
// progression engine. It provides the low-level primitives for describing
// workflow templates, inspecting instance state, and observing engine
// behavior.
//
// Most users interact with the higher-level stagegate package, which
// re-exports selected types and helpers from this package. The api package
// is intended for advanced use cases, custom integrations, or contributors
// extending the engine itself.
//
// # Concepts
//
// The api package centers around a small set of concepts:
//
//   - Workflow templates: immutable stage/gate graphs, versioned by
//     id + version, shared read-only by every instance referencing them.
//   - Workflow instances: the live, per-project mutable state (current
//     stage, gate statuses, lifecycle status, optimistic version).
//   - Gate decisions: reviewer approvals and rejections, with overwrite
//     semantics and a mandatory comment on rejection.
//   - Workflow events: the append-only, gapless audit history of every
//     accepted mutation.
//
// # Error Taxonomy
//
// Failures are typed: sentinel errors (ErrVersionConflict,
// ErrDuplicateInstance, ErrCommentRequired, ...) for conditions a caller
// matches with errors.Is, and small structured types
// (GateNotSatisfiedError, GateNotActiveError, IllegalTransitionError) with
// errors.As helpers where the caller needs the offending gate or edge.
// ErrVersionConflict is the only error a well-behaved caller retries:
// re-read the instance and re-apply the mutation.
//
// # Observability
//
// The Observer interface reports committed lifecycle transitions. The
// package ships ready-made implementations: a log/slog LoggingObserver,
// an in-memory BasicMetrics counter set, and NewCompositeObserver to
// combine them.
//
// See the stagegate package documentation and the examples directory for
// end-to-end usage.
package api
