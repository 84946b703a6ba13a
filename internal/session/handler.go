package session

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Editor UIs connect from arbitrary origins on a LAN.
		return true
	},
}

// Handler upgrades HTTP connections to the duplex client channel.
type Handler struct {
	registry *Registry
	logger   *logger.Logger
}

// NewHandler creates a websocket handler backed by registry.
func NewHandler(registry *Registry, log *logger.Logger) *Handler {
	return &Handler{
		registry: registry,
		logger:   log.WithFields(zap.String("component", "ws_handler")),
	}
}

// HandleConnection upgrades the request and runs the client's pumps. The
// welcome burst is sent as part of registration, before any frame from the
// client is read.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	h.logger.Debug("client channel established",
		zap.String("client_id", clientID),
		zap.String("remote_addr", c.Request.RemoteAddr))

	client := NewClient(clientID, conn, h.registry, h.logger)

	go client.WritePump()
	h.registry.Add(c.Request.Context(), client)
	client.ReadPump(c.Request.Context())
}

// SetupRoutes adds the client channel route to the gin engine.
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/ws", h.HandleConnection)
}
