package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPongTimeout  = 60 * time.Second
	streamPingInterval = 50 * time.Second
	streamBuffer       = 8
)

type streamMessage struct {
	Type string            `json:"type"`
	Data provider.Snapshot `json:"data"`
	Time time.Time         `json:"time"`
}

// streamClient is one websocket subscriber. OnSnapshot never blocks: when
// the client falls behind, the oldest pending snapshot is dropped.
type streamClient struct {
	id   string
	conn *websocket.Conn
	send chan provider.Snapshot
}

func (sc *streamClient) OnSnapshot(s provider.Snapshot) {
	for {
		select {
		case sc.send <- s:
			return
		default:
		}
		select {
		case <-sc.send:
		default:
		}
	}
}

func (a *api) handleStream(c *gin.Context) {
	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sc := &streamClient{
		id:   "ws-" + uuid.NewString(),
		conn: conn,
		send: make(chan provider.Snapshot, streamBuffer),
	}
	if err := a.svc.Subscribe(sc.id, sc); err != nil {
		a.logger.Warn("stream subscribe failed", "error", err)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		_ = conn.Close()
		return
	}
	a.logger.Info("stream opened", "subscription", sc.id, "remote", c.ClientIP())

	done := make(chan struct{})
	go a.writePump(sc, done)
	a.readPump(sc)
	close(done)

	a.svc.Unsubscribe(sc.id)
	a.logger.Info("stream closed", "subscription", sc.id)
}

// readPump drains client frames until the connection fails. Clients have
// nothing to say; reading keeps pong handling alive.
func (a *api) readPump(sc *streamClient) {
	sc.conn.SetReadLimit(512)
	_ = sc.conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
	sc.conn.SetPongHandler(func(string) error {
		return sc.conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
	})
	for {
		if _, _, err := sc.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.logger.Debug("stream read", "subscription", sc.id, "error", err)
			}
			return
		}
	}
}

func (a *api) writePump(sc *streamClient, done <-chan struct{}) {
	ticker := time.NewTicker(streamPingInterval)
	defer func() {
		ticker.Stop()
		_ = sc.conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case snap := <-sc.send:
			_ = sc.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			msg := streamMessage{Type: "snapshot", Data: snap, Time: time.Now().UTC()}
			if err := sc.conn.WriteJSON(msg); err != nil {
				a.logger.Debug("stream write", "subscription", sc.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = sc.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := sc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
