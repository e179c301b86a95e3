// Package websocket upgrades HTTP requests to the persistent chat transport
// and hands the resulting connection to the hub.
package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ompatelz/chattingapp/internal/hub"
)

type Handler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

func NewHandler(h *hub.Hub) *Handler {
	if h == nil {
		panic("Hub cannot be nil for websocket Handler")
	}
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The transport is authenticated in-band, not by origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		hub: h,
	}
}

// HandleConnection upgrades the request and registers the client. After the
// pumps start, all traffic for this connection flows through the hub.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logrus.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn)
	if !h.hub.Register(client) {
		logrus.WithField("conn_id", client.ID()).Error("Hub queue full, rejecting connection")
		conn.Close()
		return
	}
	client.Run()

	logrus.WithFields(logrus.Fields{
		"conn_id":   client.ID(),
		"remote_ip": c.ClientIP(),
	}).Info("Connection established")
}
