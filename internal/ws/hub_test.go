package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"craftdeck/pkg/sdk/events"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type inboundRecorder struct {
	mu     sync.Mutex
	writes []string
	got    chan struct{}
}

func (r *inboundRecorder) Write(serverID, data string) error {
	r.mu.Lock()
	r.writes = append(r.writes, serverID+":"+data)
	r.mu.Unlock()
	r.got <- struct{}{}
	return nil
}

func (r *inboundRecorder) Resize(serverID string, cols, rows int) error {
	r.got <- struct{}{}
	return nil
}

func startHub(t *testing.T, history int, inbound Inbound) (*Hub, string) {
	t.Helper()
	h := NewHub(history, zerolog.Nop())
	h.Inbound = inbound
	go h.Run()
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWs))
	t.Cleanup(func() {
		h.Stop()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, h *Hub, url string) *websocket.Conn {
	t.Helper()
	before := h.ClientCount()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == before && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	ev, err := events.DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame(%s) failed: %v", data, err)
	}
	return ev
}

func TestPublishReachesEveryClient(t *testing.T) {
	h, url := startHub(t, 0, nil)
	a := dial(t, h, url)
	b := dial(t, h, url)

	h.Publish(events.ChangeStateFrame{
		Type:      events.FrameEvent,
		EventType: events.EventChangeState,
		Server:    "s1",
		OldState:  "stopped",
		NewState:  "starting",
	})

	for _, conn := range []*websocket.Conn{a, b} {
		ev, ok := readEvent(t, conn).(*events.ServerChangeStateEvent)
		if !ok || ev.ServerID != "s1" || ev.NewState != events.StateStarting {
			t.Errorf("Unexpected event %+v", ev)
		}
	}
}

func TestNewClientsReplayConsoleHistory(t *testing.T) {
	h, url := startHub(t, 2, nil)
	first := dial(t, h, url)

	for _, line := range []string{"one\n", "two\n", "three\n"} {
		h.Publish(events.ProcessReadFrame{Type: events.FrameEvent, EventType: events.EventProcessRead, Server: "s1", Data: line})
	}
	h.Publish(events.FileTaskFrame{Type: events.FrameEvent, EventType: events.EventFileTaskEnd, Task: events.WireTask{ID: 1, Result: "success"}})

	for i := 0; i < 4; i++ {
		readEvent(t, first)
	}

	late := dial(t, h, url)
	for _, want := range []string{"two\n", "three\n"} {
		ev, ok := readEvent(t, late).(*events.ServerProcessReadEvent)
		if !ok || ev.Data != want {
			t.Errorf("Expected replayed %q, got %+v", want, ev)
		}
	}
	if snap := h.GetHistorySnapshot(); len(snap) != 2 {
		t.Errorf("Expected history capped at 2, got %d", len(snap))
	}
}

func TestInboundFramesReachHandler(t *testing.T) {
	rec := &inboundRecorder{got: make(chan struct{}, 4)}
	h, url := startHub(t, 0, rec)
	conn := dial(t, h, url)

	conn.WriteJSON(events.NewProcessWriteFrame("s1", "say hi\n"))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"something_else"}`))
	conn.WriteJSON(events.NewTermSizeFrame("s1", 80, 24))

	for i := 0; i < 2; i++ {
		select {
		case <-rec.got:
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for inbound frames")
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.writes) != 1 || rec.writes[0] != "s1:say hi\n" {
		t.Errorf("Expected one process write, got %v", rec.writes)
	}
}
