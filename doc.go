// Package stagegate provides a lightweight, embeddable workflow progression
// engine for Go.
//
// Stagegate is designed for backend services that track long-running,
// human-paced processes: a project moves through a fixed set of stages, and
// leaving a stage requires named reviewers to approve the gates guarding it.
// It runs fully in Go, supports multiple persistence backends, and keeps a
// complete, replayable audit trail of every state change.
//
// # Core Concepts
//
// The stagegate programming model is intentionally small:
//
//  1. WorkflowTemplate
//  2. Engine
//  3. Gates
//  4. Event log
//
// # WorkflowTemplate
//
// A template is an immutable definition of the process: stages connected by
// allowed-transition edges, plus gates. Templates are assembled with
// TemplateBuilder or loaded from YAML with LoadTemplate, and validated before
// registration. The YAML format:
//
//	id: bmad
//	version: v1
//	stages:
//	  - id: qualification
//	    name: Qualification
//	    next: [design]
//	  - id: design
//	    name: Design
//	gates:
//	  - id: qual-review
//	    name: Qualification Review
//	    stage: qualification
//
// # Engine
//
// The Engine persists workflow instances, enforces transition and gate rules,
// and provides APIs to:
//   - create instances from registered templates
//   - advance instances along template edges
//   - record gate decisions
//   - override transitions manually with an audit trail
//   - read instance state and event history
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//
// Every mutation is an optimistic compare-and-swap on the instance version.
// Concurrent writers lose with a version-conflict error rather than silently
// clobbering each other; callers decide whether to re-read and retry.
//
// # Gates
//
// A gate guards transition out of one stage and is decided by a named actor
// through DecideGate. Approvals may carry a comment; rejections must. A gate
// can declare dependencies on other gates of the same stage, which must be
// approved first. When every pending gate of the current stage has been
// decided and at least one was rejected, the instance is blocked until a
// reviewer changes their decision or an operator overrides the transition.
//
// # Event log
//
// Each instance carries an append-only event log with gapless IDs starting
// at 1, written atomically with the state change that caused it. The log is
// the audit trail and also a full reconstruction recipe: Replay folds a
// template and an event history back into the exact stored instance.
//
// # Summary
//
// Stagegate's goal is a progression engine that feels like Go: easy to embed,
// easy to test, deterministic, and without operational overhead. Templates
// define the process, the Engine enforces it, gates put humans in the loop,
// and the event log remembers everything.
//
// For examples, see the /examples directory or the project README.
package stagegate
