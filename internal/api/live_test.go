package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gwi.com/mermaid-studio/internal/core"
	"gwi.com/mermaid-studio/internal/store"
)

func dialLive(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/api/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if msg["type"] == typ {
			return msg
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLiveHello(t *testing.T) {
	srv, _ := newTestServer(t, stubGenerator{})
	conn := dialLive(t, srv.URL)

	hello := readUntil(t, conn, EventHello)
	if hello["code"] != store.InitialCode || hello["theme"] != string(store.ThemeDefault) {
		t.Errorf("hello = %v", hello)
	}
	if _, ok := hello["view"]; !ok {
		t.Error("hello without view")
	}

	conn.WriteJSON(ClientMessage{Type: MsgPing})
	if pong := readUntil(t, conn, EventPong); pong["timestamp"] == "" {
		t.Errorf("pong = %v", pong)
	}
}

func TestLiveEditRendersAndBroadcasts(t *testing.T) {
	srv, studio := newTestServer(t, stubGenerator{})
	editor := dialLive(t, srv.URL)
	viewer := dialLive(t, srv.URL)
	readUntil(t, editor, EventHello)
	readUntil(t, viewer, EventHello)

	editor.WriteJSON(ClientMessage{Type: MsgEdit, Code: "graph LR\n x-->y"})

	ev := readUntil(t, viewer, string(core.EventRenderFinished))
	result, _ := ev["result"].(map[string]any)
	if result["status"] != string(core.RenderOK) {
		t.Errorf("render event = %v", ev)
	}
	if studio.State().Code() != "graph LR\n x-->y" {
		t.Errorf("code = %q", studio.State().Code())
	}
}

func TestLiveErrors(t *testing.T) {
	srv, _ := newTestServer(t, stubGenerator{})
	conn := dialLive(t, srv.URL)
	readUntil(t, conn, EventHello)

	conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
	if msg := readUntil(t, conn, EventError); msg["message"] != "Failed to parse message" {
		t.Errorf("error = %v", msg)
	}

	conn.WriteJSON(ClientMessage{Type: MsgTheme, Theme: "plaid"})
	readUntil(t, conn, EventError)

	conn.WriteJSON(ClientMessage{Type: "teleport"})
	if msg := readUntil(t, conn, EventError); !strings.Contains(msg["message"].(string), "teleport") {
		t.Errorf("error = %v", msg)
	}
}

func TestSlowClientDroppedWithoutPanic(t *testing.T) {
	_, studio := newTestServer(t, stubGenerator{})
	hub := NewHub(studio, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	// No pumps run for this client, so its buffer fills up.
	client := &Client{hub: hub, send: make(chan []byte, 4)}
	hub.register <- client
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	waitFor(t, func() bool {
		studio.ViewAction("zoom-in")
		return hub.ClientCount() == 0
	})

	// Replies to a dropped client are discarded.
	client.handleMessage([]byte(`{"type":"ping"}`))
	client.handleMessage([]byte(`{"type":"teleport"}`))
	client.close()
	if client.trySend([]byte("x")) {
		t.Error("send after close succeeded")
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		allowed []string
		origin  string
		want    bool
	}{
		{[]string{"*"}, "https://evil.example", true},
		{[]string{"http://localhost:5173"}, "http://localhost:5173", true},
		{[]string{"http://localhost:5173"}, "http://localhost:3000", false},
		{[]string{"https://*.studio.dev"}, "https://app.studio.dev", true},
		{[]string{"https://*.studio.dev"}, "http://app.studio.dev", false},
		{[]string{"http://localhost:5173"}, "", true},
		{nil, "http://localhost:5173", false},
	}
	for _, tt := range tests {
		r, _ := http.NewRequest(http.MethodGet, "/api/live", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := originChecker(tt.allowed)(r); got != tt.want {
			t.Errorf("originChecker(%v)(%q) = %v, want %v", tt.allowed, tt.origin, got, tt.want)
		}
	}
}
