package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"craftdeck/pkg/sdk/events"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Inbound handles frames sent by clients.
type Inbound interface {
	Write(serverID, data string) error
	Resize(serverID string, cols, rows int) error
}

type message struct {
	data []byte
	keep bool
}

// Hub fans every published frame out to all connected clients. Console
// output is also kept in a bounded history that new clients receive first.
type Hub struct {
	Inbound Inbound

	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	history    [][]byte
	maxHistory int

	log zerolog.Logger
	mu  sync.RWMutex
}

func NewHub(maxHistory int, log zerolog.Logger) *Hub {
	if maxHistory < 0 {
		maxHistory = 0
	}
	return &Hub{
		broadcast:  make(chan message, 4096),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		stop:       make(chan struct{}),
		maxHistory: maxHistory,
		log:        log,
	}
}

func (h *Hub) GetHistorySnapshot() [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.history) == 0 {
		return nil
	}
	copyHist := make([][]byte, len(h.history))
	copy(copyHist, h.history)
	return copyHist
}

// ClientCount is the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			for _, msg := range h.GetHistorySnapshot() {
				select {
				case client.send <- msg:
				default:
				}
			}
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			if msg.keep && h.maxHistory > 0 {
				h.history = append(h.history, msg.data)
				if len(h.history) > h.maxHistory {
					h.history = h.history[1:]
				}
			}
			for client := range h.clients {
				select {
				case client.send <- msg.data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.history = nil
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Publish encodes frame as JSON and broadcasts it.
func (h *Hub) Publish(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Error().Err(err).Msg("Could not encode frame")
		return
	}
	_, console := frame.(events.ProcessReadFrame)
	h.send(message{data: data, keep: console})
}

func (h *Hub) Broadcast(data []byte) {
	h.send(message{data: data})
}

func (h *Hub) send(msg message) {
	select {
	case h.broadcast <- msg:
	case <-h.stop:
	}
}

func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256+h.maxHistory)}

	select {
	case h.register <- client:
	case <-h.stop:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
