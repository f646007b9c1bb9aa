package resource

import "errors"

// ErrSourceClosed indicates an append to a closed discovery stream.
var ErrSourceClosed = errors.New("discovery source closed")
