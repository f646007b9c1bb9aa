// Package toolproto implements the uniform tool-provider invocation
// protocol: a registry of named providers advertising named operations, a
// wire-level request/response contract, and a client that owns retry,
// timeout, and circuit-breaking policy for every outbound call.
//
// The client is the single mutation path for provider health. Providers
// degrade after repeated consecutive failures, open the breaker after a
// further grace period without successes, and recover to healthy after one
// successful probe.
package toolproto
