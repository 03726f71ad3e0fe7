package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ipgeo-ws/internal/protocol"
	"ipgeo-ws/internal/session"
	"ipgeo-ws/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler upgrades requests and runs one Session per connection on
// the request's own goroutine.
type WebSocketHandler struct {
	handler protocol.Handler
	config  session.Config
	logger  *session.WebSocketLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(handler protocol.Handler, cfg session.Config, logger *session.WebSocketLogger) *WebSocketHandler {
	return &WebSocketHandler{
		handler: handler,
		config:  cfg,
		logger:  logger,
	}
}

// Handle upgrades HTTP to WebSocket
func (h *WebSocketHandler) Handle(c *gin.Context) {
	sessionID := logger.RequestID(c.Request.Context())
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.logger.Warn("handshake failed", sessionID, c.Request.RemoteAddr, zap.Error(err))
		_ = c.Error(err)
		return
	}

	s := session.New(sessionID, conn, h.handler, h.config, h.logger)
	// Sessions outlive the HTTP request context; only the idle watchdog ends them.
	_ = s.Run(context.Background())
}
