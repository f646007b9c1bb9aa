// Package session owns the orchestration state for one run: the lifecycle
// state machine per resource and the registry tying discovery, analysis,
// plan acceptance, and execution together. All mutable orchestration state
// lives here; reads return committed snapshots and are safe concurrently
// with in-flight transitions.
package session
