// Package protocol holds the per-variant logic that turns one inbound text
// frame into at most one outbound text frame.
package protocol

import "context"

// Handler maps an inbound text payload to a reply. ok is false when the
// payload warrants no reply at all. Implementations keep no per-call state
// and are shared by every session of a listener.
type Handler interface {
	Handle(ctx context.Context, text string) (reply string, ok bool)
}
