package realtime

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"VersatileShare/internal/auth"
)

// SocketHandler upgrades authenticated HTTP requests into registry sessions.
type SocketHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewSocketHandler(hub *Hub, logger *zap.Logger) *SocketHandler {
	return &SocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.Named("socket"),
	}
}

// Serve verifies the bearer credential, upgrades the transport, and registers
// the session. A missing or invalid credential refuses the connection before
// the upgrade: no entry is created and no socket exists to clean up.
func (h *SocketHandler) Serve(c echo.Context) error {
	claims, err := auth.ValidateJWT(bearerToken(c))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication rejected"})
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the failure response.
		return nil
	}

	s := NewSession(h.hub, conn, claims, h.logger)
	h.hub.Register(s)

	go s.writePump()

	// Handshake confirmation: the client treats the connection as ready only
	// after seeing this frame.
	if env, err := NewEnvelope(EventConnected, ConnectedPayload{SessionID: s.ID}); err == nil {
		s.enqueue(env)
	}

	s.readPump()
	return nil
}

// bearerToken pulls the credential from the Authorization header or, for
// browser WebSocket clients that cannot set headers, the token query param.
func bearerToken(c echo.Context) string {
	if header := c.Request().Header.Get("Authorization"); header != "" {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.QueryParam("token")
}
