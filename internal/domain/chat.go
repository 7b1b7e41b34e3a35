package domain

import "errors"

// Upstream failure classes. Integrations wrap their causes with one of these so
// the relay can classify failures without knowing the transport.
var (
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamTransport = errors.New("upstream transport failure")
	ErrMalformedResponse = errors.New("upstream response missing generated text")
)
