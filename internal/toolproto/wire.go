package toolproto

// Request is the transport-level invocation contract sent to a provider.
type Request struct {
	Operation  string         `json:"operation"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Response is the transport-level reply. Status is "ok" or "error".
type Response struct {
	Status  string         `json:"status"`
	Result  map[string]any `json:"result,omitempty"`
	Kind    string         `json:"kind,omitempty"`
	Message string         `json:"message,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// OK reports whether the provider accepted the call.
func (r Response) OK() bool {
	return r.Status == StatusOK
}

// ErrorKind maps the wire-level error kind to the client taxonomy.
// Unknown kinds are treated as rejections so they are never retried blindly.
func (r Response) ErrorKind() ErrorKind {
	switch r.Kind {
	case string(ErrorTimeout):
		return ErrorTimeout
	case string(ErrorUnreachable):
		return ErrorUnreachable
	case string(ErrorInvalidOperation):
		return ErrorInvalidOperation
	default:
		return ErrorRejected
	}
}
