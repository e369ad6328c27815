package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWSHub_BroadcastReachesClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewWSHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { conn.Close() }()

	// Registration races the dial returning, so retry until a message lands.
	var msg WSMessage
	for i := 0; ; i++ {
		if i == 50 {
			t.Fatal("no message received")
		}
		hub.Broadcast(EventGameStarted, map[string]string{"id": "g1"})
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		_, data, err := conn.ReadMessage()
		if err != nil {
			// A timed-out read leaves the gorilla conn unusable; redial.
			conn.Close()
			conn, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
			if err != nil {
				t.Fatalf("redial: %v", err)
			}
			continue
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		break
	}

	if msg.Type != EventGameStarted {
		t.Errorf("expected %s, got %s", EventGameStarted, msg.Type)
	}
}

func TestWSHub_NilBroadcastIsNoop(t *testing.T) {
	var hub *WSHub
	hub.Broadcast(EventQuotesRefreshed, nil)
}
