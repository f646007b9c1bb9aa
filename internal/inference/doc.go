// Package inference exposes the opaque inference capability used by the
// analysis stages: infer(prompt, context) -> structured result.
//
// The capability is wired as a tool provider so every inference call
// inherits the tool client's retry and circuit-breaking policy. The HTTP
// backends (Anthropic, OpenAI) perform a single round trip each; retries
// live in the tool client.
package inference
