package sdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
)

func TestAPIErrorDecoding(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mux.HandleFunc("GET /server/missing", func(w http.ResponseWriter, r *http.Request) {
		apiError(w, http.StatusNotFound, CodeServerNotFound)
	})

	_, err := fb.client().GetServer(context.Background(), "missing")
	if !IsCode(err, CodeServerNotFound) {
		t.Fatalf("Expected server-not-found, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Detail != "test" {
		t.Errorf("Unexpected API error: %+v", apiErr)
	}
	if msg := Message(err); msg != "server not found" {
		t.Errorf("Expected 'server not found', got %q", msg)
	}
}

func TestMessageFallbacks(t *testing.T) {
	if msg := Message(&APIError{Code: 12345}); msg != "an unknown error occurred" {
		t.Errorf("Expected generic message for unknown code, got %q", msg)
	}
	if msg := Message(errors.New("boom")); msg != "an unknown error occurred" {
		t.Errorf("Expected generic message, got %q", msg)
	}
	if msg := Message(nil); msg != "" {
		t.Errorf("Expected empty message for nil, got %q", msg)
	}
}

func TestNetworkErrorIsDistinct(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewClient(url, WithRetryMax(0)).ListServers(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Expected ErrNetwork, got %v", err)
	}
	if msg := Message(err); msg != "could not connect to the server" {
		t.Errorf("Unexpected message: %q", msg)
	}
}

func TestPlainTextErrorBody(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mux.HandleFunc("POST /server/s1/start", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	})

	_, err := fb.client().StartServer(context.Background(), "s1")
	if err == nil || err.Error() != "error: nope" {
		t.Errorf("Expected 'error: nope', got %v", err)
	}
}

func TestLoginKeepsSessionCookie(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	fb.mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("session")
		writeJSON(w, http.StatusOK, map[string]bool{"result": err == nil && c.Value == "abc"})
	})

	c := fb.client()
	if ok, _ := c.IsValidSession(context.Background()); ok {
		t.Error("Expected no session before login")
	}
	if err := c.Login(context.Background(), "admin", "pw"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	ok, err := c.IsValidSession(context.Background())
	if err != nil || !ok {
		t.Errorf("Expected valid session after login, got %v %v", ok, err)
	}
}

func TestCreateServerUsesGeneratedID(t *testing.T) {
	fb := newFakeBackend(t)
	created := make(chan string, 1)
	fb.mux.HandleFunc("POST /server/{id}", func(w http.ResponseWriter, r *http.Request) {
		created <- r.PathValue("id")
		writeJSON(w, http.StatusOK, map[string]bool{"result": true})
	})
	fb.mux.HandleFunc("GET /server/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": r.PathValue("id"), "name": "", "state": "STOPPED"})
	})

	srv, err := fb.client().CreateServer(context.Background(), CreateServerRequest{Directory: "lobby", Type: "vanilla"})
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	if id := <-created; srv.ID == "" || srv.ID != id {
		t.Errorf("Expected server %s, got %s", id, srv.ID)
	}
	if srv.DisplayName() != srv.ID || srv.State != "stopped" {
		t.Errorf("Unexpected server: %+v", srv)
	}
}

func TestWebSocketURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":       "ws://localhost:8080/ws",
		"https://panel.example.com/":  "wss://panel.example.com/ws",
		"http://10.0.0.2:8080/prefix": "ws://10.0.0.2:8080/prefix/ws",
	}
	for base, want := range cases {
		got, err := NewClient(base).GetWebSocketURL(DefaultWebSocketPath)
		if err != nil || got != want {
			t.Errorf("GetWebSocketURL(%s) = %s, %v; want %s", base, got, err, want)
		}
	}
}

func TestSessionCookiesCarryAcrossClients(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "abc", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	fb.mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("token")
		writeJSON(w, http.StatusOK, map[string]bool{"result": err == nil && c.Value == "abc"})
	})

	first := fb.client()
	if err := first.Login(context.Background(), "admin", "pw"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	cookies := first.Cookies()
	if len(cookies) != 1 || cookies[0].Value != "abc" {
		t.Fatalf("Expected the session cookie, got %v", cookies)
	}

	second := fb.client()
	second.SetCookies([]*http.Cookie{{Name: "token", Value: cookies[0].Value}})
	if ok, err := second.IsValidSession(context.Background()); err != nil || !ok {
		t.Errorf("Expected restored session to be valid, got %v %v", ok, err)
	}
}
