package session

import (
	"go.uber.org/zap"
)

// WebSocketLogger provides structured logging for WebSocket events
type WebSocketLogger struct {
	logger *zap.Logger
}

// NewWebSocketLogger creates a new WebSocket logger
func NewWebSocketLogger(base *zap.Logger) *WebSocketLogger {
	if base == nil {
		base = zap.L()
	}
	return &WebSocketLogger{
		logger: base.With(zap.String("component", "websocket")),
	}
}

// Info logs info level event
func (l *WebSocketLogger) Info(event string, sessionID, remoteAddr string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.String("session_id", sessionID),
		zap.String("remote_addr", remoteAddr),
	}, fields...)
	l.logger.Info("websocket_event", allFields...)
}

// Error logs error level event
func (l *WebSocketLogger) Error(event string, sessionID, remoteAddr string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.String("session_id", sessionID),
		zap.String("remote_addr", remoteAddr),
		zap.Error(err),
	}, fields...)
	l.logger.Error("websocket_error", allFields...)
}

// Warn logs warning level event
func (l *WebSocketLogger) Warn(event string, sessionID, remoteAddr string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.String("session_id", sessionID),
		zap.String("remote_addr", remoteAddr),
	}, fields...)
	l.logger.Warn("websocket_warning", allFields...)
}
