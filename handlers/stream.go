package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"go-aidr/store"
)

const writeWait = 5 * time.Second

// Stream upgrades to a WebSocket and forwards store change notifications. The
// first message is a snapshot marker with the current version so a client
// knows to read the full state once. Messages from the client are ignored.
func (h *Handlers) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Stream upgrade failed", zap.Error(err))
		return
	}

	changes, cancel := h.Store.Subscribe()
	defer cancel()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		conn.Close()
		<-gone
	}()

	h.log.Debug("Stream opened", zap.String("remote", c.Request.RemoteAddr))
	if err := send(conn, store.Change{Kind: store.ChangeSnapshot, Version: h.Store.Version()}); err != nil {
		return
	}
	for {
		select {
		case ch, ok := <-changes:
			if !ok {
				return
			}
			if err := send(conn, ch); err != nil {
				h.log.Debug("Stream write failed", zap.Error(err))
				return
			}
		case <-gone:
			return
		case <-h.quit:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

func send(conn *websocket.Conn, ch store.Change) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(ch)
}
