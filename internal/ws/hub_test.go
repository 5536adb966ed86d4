package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitViewers(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("viewers = %d, want %d", h.Count(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastWithoutViewers(t *testing.T) {
	h := NewHub("test")
	if n := h.TextAll([]byte("hello")); n != 0 {
		t.Fatalf("delivered = %d, want 0", n)
	}
}

func TestTextAndBinaryReachEveryViewer(t *testing.T) {
	h := NewHub("test")
	srv := httptest.NewServer(h)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	waitViewers(t, h, 2)

	if n := h.TextAll([]byte(`{"v":1}`)); n != 2 {
		t.Fatalf("text delivered = %d, want 2", n)
	}
	if n := h.BinaryAll([]byte{0xFF, 0xAA, 0x01}); n != 2 {
		t.Fatalf("binary delivered = %d, want 2", n)
	}

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		kind, data, err := conn.ReadMessage()
		if err != nil || kind != websocket.TextMessage || string(data) != `{"v":1}` {
			t.Fatalf("text frame = %d %q %v", kind, data, err)
		}
		kind, data, err = conn.ReadMessage()
		if err != nil || kind != websocket.BinaryMessage || len(data) != 3 || data[0] != 0xFF {
			t.Fatalf("binary frame = %d % x %v", kind, data, err)
		}
	}
}

func TestDisconnectedViewerIsRemoved(t *testing.T) {
	h := NewHub("test")
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	waitViewers(t, h, 1)
	conn.Close()
	waitViewers(t, h, 0)
}
