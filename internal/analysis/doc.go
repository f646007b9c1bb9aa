// Package analysis drives each discovered resource through the Research,
// Plan, and Security stages with bounded concurrency across resources.
// Stages are composed behind one polymorphic interface; within a resource
// they run strictly in order because each consumes the previous stage's
// output. Failures are isolated per resource.
package analysis
