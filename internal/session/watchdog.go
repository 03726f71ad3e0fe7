package session

import (
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// Outcome classifies the result of one guarded frame read.
type Outcome int

const (
	FrameReceived Outcome = iota
	StreamEnded
	TransportError
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case FrameReceived:
		return "frame_received"
	case StreamEnded:
		return "stream_ended"
	case TransportError:
		return "transport_error"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// deadliner is the part of *websocket.Conn the watchdog needs.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Watchdog bounds each frame read with the idle timeout. The read deadline is
// the timer: a read that outlives it fails with a timeout error, which
// Classify reports as TimedOut.
type Watchdog struct {
	conn    deadliner
	timeout time.Duration
	now     func() time.Time
}

func NewWatchdog(conn deadliner, timeout time.Duration) *Watchdog {
	return &Watchdog{conn: conn, timeout: timeout, now: time.Now}
}

// Arm restarts the idle window from now.
func (w *Watchdog) Arm() error {
	return w.conn.SetReadDeadline(w.now().Add(w.timeout))
}

func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}

// Classify maps the error returned by a frame read to an Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return FrameReceived
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return StreamEnded
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TimedOut
	}
	return TransportError
}
