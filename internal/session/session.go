// Package session runs the server side of one accepted WebSocket connection:
// an idle-guarded read loop that hands text frames to a protocol.Handler and
// writes back its reply before reading the next frame.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ipgeo-ws/internal/protocol"
	wserrors "ipgeo-ws/pkg/errors"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512 * 1024

	livenessPing  = "ping"
	livenessReply = "pong"
)

// Config holds the per-variant session settings. It is read-only once a
// session starts.
type Config struct {
	IdleTimeout    time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	// LivenessPing answers a bare "ping" text frame with "pong" without
	// consulting the handler.
	LivenessPing   bool
}

// ProxyConfig is the lookup proxy variant: liveness ping enabled.
func ProxyConfig(idle time.Duration) Config {
	return Config{IdleTimeout: idle, WriteWait: writeWait, MaxMessageSize: maxMessageSize, LivenessPing: true}
}

// HeartbeatConfig is the PING/PONG variant: every text frame goes to the handler.
func HeartbeatConfig(idle time.Duration) Config {
	return Config{IdleTimeout: idle, WriteWait: writeWait, MaxMessageSize: maxMessageSize}
}

// Stats is a snapshot of a session's counters.
type Stats struct {
	FramesReceived int64
	RepliesSent    int64
	Duration       time.Duration
}

// Session owns one upgraded connection until its read loop exits.
type Session struct {
	id          string
	remoteAddr  string
	conn        *websocket.Conn
	handler     protocol.Handler
	cfg         Config
	watchdog    *Watchdog
	logger      *WebSocketLogger
	connectedAt time.Time

	framesRecv  atomic.Int64
	repliesSent atomic.Int64
}

func New(id string, conn *websocket.Conn, handler protocol.Handler, cfg Config, logger *WebSocketLogger) *Session {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = writeWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = maxMessageSize
	}
	if logger == nil {
		logger = NewWebSocketLogger(nil)
	}
	return &Session{
		id:          id,
		remoteAddr:  conn.RemoteAddr().String(),
		conn:        conn,
		handler:     handler,
		cfg:         cfg,
		watchdog:    NewWatchdog(conn, cfg.IdleTimeout),
		logger:      logger,
		connectedAt: time.Now(),
	}
}

func (s *Session) Stats() Stats {
	return Stats{
		FramesReceived: s.framesRecv.Load(),
		RepliesSent:    s.repliesSent.Load(),
		Duration:       time.Since(s.connectedAt),
	}
}

// Run reads frames until the peer closes, the transport fails or the idle
// window elapses, then releases the connection. The returned error names the
// reason: ErrIdleTimeout, ErrPeerClosed or ErrTransport.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.conn.Close()

	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	s.conn.SetPingHandler(s.handlePing)
	s.conn.SetPongHandler(func(string) error {
		s.framesRecv.Add(1)
		return s.watchdog.Arm()
	})

	s.logger.Info("connected", s.id, s.remoteAddr)

	err := s.readLoop(ctx)

	stats := s.Stats()
	s.logger.Info("disconnected", s.id, s.remoteAddr,
		zap.String("reason", err.Error()),
		zap.Int64("frames_received", stats.FramesReceived),
		zap.Int64("replies_sent", stats.RepliesSent),
		zap.Duration("duration", stats.Duration),
	)
	return err
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		if err := s.watchdog.Arm(); err != nil {
			return fmt.Errorf("%w: %v", wserrors.ErrTransport, err)
		}

		messageType, payload, err := s.conn.ReadMessage()
		switch Classify(err) {
		case TimedOut:
			s.logger.Info("timed out", s.id, s.remoteAddr, zap.Duration("idle_timeout", s.watchdog.Timeout()))
			s.closeIdle()
			return wserrors.ErrIdleTimeout
		case StreamEnded:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket unexpected close", s.id, s.remoteAddr, zap.Error(err))
			}
			return fmt.Errorf("%w: %v", wserrors.ErrPeerClosed, err)
		case TransportError:
			s.logger.Error("websocket read failed", s.id, s.remoteAddr, err)
			return fmt.Errorf("%w: %v", wserrors.ErrTransport, err)
		}

		s.framesRecv.Add(1)
		if err := s.dispatch(ctx, messageType, payload); err != nil {
			return fmt.Errorf("%w: %v", wserrors.ErrTransport, err)
		}
	}
}

// dispatch routes one data frame. Binary frames are ignored; control frames
// never reach here.
func (s *Session) dispatch(ctx context.Context, messageType int, payload []byte) error {
	if messageType != websocket.TextMessage {
		return nil
	}

	text := string(payload)
	if s.cfg.LivenessPing && IsLivenessPing(text) {
		return s.writeText(livenessReply)
	}

	reply, ok := s.handler.Handle(ctx, text)
	if !ok {
		return nil
	}
	return s.writeText(reply)
}

// IsLivenessPing reports whether text is the bare "ping" keyword, ignoring
// case and surrounding whitespace.
func IsLivenessPing(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), livenessPing)
}

func (s *Session) writeText(text string) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return err
	}
	s.repliesSent.Add(1)
	return nil
}

// handlePing echoes the payload in a pong. A ping is activity, so the idle
// window restarts.
func (s *Session) handlePing(data string) error {
	s.framesRecv.Add(1)
	if err := s.watchdog.Arm(); err != nil {
		return err
	}
	err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.cfg.WriteWait))
	if err == websocket.ErrCloseSent {
		return nil
	}
	return err
}

// closeIdle sends a best-effort close frame before the connection is dropped.
func (s *Session) closeIdle() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "idle timeout")
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteWait)); err != nil {
		s.logger.Warn("close frame not sent", s.id, s.remoteAddr, zap.Error(err))
	}
}
