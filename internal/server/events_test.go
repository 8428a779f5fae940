package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alexmahrou/mcp-server/internal/contextstore"
	"github.com/alexmahrou/mcp-server/internal/supervise"
)

func TestEventHubStreamsTransitions(t *testing.T) {
	hub := NewEventHub(nil)
	server := httptest.NewServer(http.HandlerFunc(hub.Serve))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	event := supervise.Event{
		Operation: "create_backtest",
		Domain:    contextstore.DomainBacktest,
		State:     "completed",
		Raw:       "Completed",
		Attempt:   4,
		Terminal:  true,
	}
	// The client registers asynchronously after the upgrade; retry until
	// the subscription is live.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.Publish(event)
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		var got supervise.Event
		if err := conn.ReadJSON(&got); err == nil {
			if got != event {
				t.Fatalf("event = %+v, want %+v", got, event)
			}
			return
		}
	}
	t.Fatalf("no event received before deadline")
}

func TestPublishWithoutClientsDoesNotBlock(t *testing.T) {
	hub := NewEventHub(nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish(supervise.Event{Operation: "create_compile", Attempt: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked without subscribers")
	}
}
