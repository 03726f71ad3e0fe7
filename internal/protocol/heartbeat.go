package protocol

import (
	"context"
	"strconv"
	"strings"
	"time"
)

const (
	pingPrefix = "PING "
	pongPrefix = "PONG "
)

// Heartbeat answers "PING <anything>" with "PONG <epoch-millis>" and ignores
// everything else.
type Heartbeat struct {
	now func() time.Time
}

func NewHeartbeat() *Heartbeat {
	return &Heartbeat{now: time.Now}
}

// NewHeartbeatWithClock is NewHeartbeat with an injected time source.
func NewHeartbeatWithClock(now func() time.Time) *Heartbeat {
	return &Heartbeat{now: now}
}

func (h *Heartbeat) Handle(_ context.Context, text string) (string, bool) {
	if !strings.HasPrefix(text, pingPrefix) {
		return "", false
	}
	return pongPrefix + strconv.FormatInt(h.now().UnixMilli(), 10), true
}
