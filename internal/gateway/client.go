package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pixil98/go-office/internal/office"
	"github.com/pixil98/go-office/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 4096
	sendBufferSize = 64
)

// client owns one websocket. Frames are queued by the session observer and
// written by a single writer goroutine.
type client struct {
	id     string
	roomId string
	ws     *websocket.Conn
	send   chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

var _ realtime.Observer = (*client)(nil)

func newClient(id string, roomId string, ws *websocket.Conn) *client {
	return &client{
		id:     id,
		roomId: roomId,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *client) PeersChanged(peers map[string]office.Snapshot) {
	c.queue(framePeers, peers)
}

func (c *client) MessagesChanged(messages []realtime.Message) {
	c.queue(frameMessages, messages)
}

func (c *client) ReactionsChanged(reactions map[string]string) {
	c.queue(frameReactions, reactions)
}

func (c *client) StateChanged(state realtime.State) {
	c.queue(frameState, statePayload{State: state, Room: c.roomId, Id: c.id})
}

func (c *client) self(snap office.Snapshot) {
	c.queue(frameSelf, snap)
}

func (c *client) fail(message string) {
	c.queue(frameError, errorPayload{Message: message})
}

// queue never blocks. A client too slow to drain its buffer is disconnected.
func (c *client) queue(frameType string, payload any) {
	data, err := encodeFrame(frameType, payload)
	if err != nil {
		slog.Warn("encoding frame", "id", c.id, "type", frameType, "error", err)
		return
	}

	select {
	case <-c.done:
	case c.send <- data:
	default:
		slog.Warn("client send buffer full, disconnecting", "id", c.id)
		c.close()
	}
}

func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.DebugContext(ctx, "writing frame", "id", c.id, "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// close stops the writer and unblocks the reader.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.SetReadDeadline(time.Now())
	})
}
