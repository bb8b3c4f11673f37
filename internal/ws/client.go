package ws

import (
	"errors"
	"time"

	"craftdeck/pkg/sdk/events"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one websocket connection registered with a Hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug().Err(err).Msg("Websocket closed")
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	frame, err := events.DecodeOutbound(data)
	if err != nil {
		if !errors.Is(err, events.ErrUnknownFrame) {
			c.hub.log.Debug().Err(err).Msg("Dropping malformed frame")
		}
		return
	}
	if c.hub.Inbound == nil {
		return
	}

	switch f := frame.(type) {
	case events.ProcessWriteFrame:
		err = c.hub.Inbound.Write(f.Server, f.Data)
	case events.TermSizeFrame:
		err = c.hub.Inbound.Resize(f.Server, f.Cols, f.Rows)
	}
	if err != nil {
		c.hub.log.Debug().Err(err).Msg("Inbound frame rejected")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
