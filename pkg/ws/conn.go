package ws

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alliance74/african-farm-route/pkg/auth"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

type wsConn struct {
	conn     *websocket.Conn
	id       string
	identity auth.Identity
	server   *Server
	ticker   *time.Ticker
	logger   *slog.Logger

	// mu guards out and closed: a Send may race the teardown, for example
	// when a broadcast snapshot still holds a connection that has just
	// disconnected. The flag is flipped before the channel is closed, so a
	// racing Send becomes a no-op instead of a send on a closed channel.
	mu     sync.Mutex
	out    chan *Packet
	closed bool
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Identity() auth.Identity { return c.identity }

// Send queues a packet for the write loop. On a torn-down connection it is a
// no-op. A peer that cannot drain its queue gets its underlying connection
// closed, which unwinds through the read loop into the normal disconnect path.
func (c *wsConn) Send(p *Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.out <- p:
	default:
		c.logger.Warn("send queue full, dropping connection")
		c.conn.Close()
	}
}

// shutdown marks the connection closed and releases the write loop. Idempotent.
func (c *wsConn) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.out)
}

func (c *wsConn) readLoop() {
	defer func() {
		c.server.disconnect(c)
		c.conn.Close()
		c.logger.Debug("exited read loop")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		mt, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			c.logger.Error(fmt.Sprintf("NextReader: %v", err))
			return
		}

		packet, err := decodePacket(mt, r)
		if err != nil {
			// A frame that cannot be decoded at all is fatal to the connection.
			c.logger.Error(fmt.Sprintf("DecodePacket: %v", err))
			return
		}

		c.server.handler.OnPacket(c, packet)
	}
}

func (c *wsConn) writeLoop() {
	var err error
	defer func() {
		c.ticker.Stop()
		if err != nil {
			c.conn.Close()
		}
		c.logger.Debug("exited write loop")
	}()

	for {
		select {
		case packet, ok := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err = encodePacket(c.conn.NextWriter, packet); err != nil {
				c.logger.Error(fmt.Sprintf("EncodePacket: %v", err))
				return
			}
		case <-c.ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error(fmt.Sprintf("WritePing: %v", err))
				return
			}
		}
	}
}
