package wserrors

import "errors"

// Session termination reasons.
var (
	ErrIdleTimeout = errors.New("idle timeout")
	ErrPeerClosed  = errors.New("peer closed connection")
	ErrTransport   = errors.New("transport error")
)

// Request and upstream errors.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidAPI     = errors.New("invalid api")
	ErrUpstream       = errors.New("upstream request failed")
)
