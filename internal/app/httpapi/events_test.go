package httpapi

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/drawing"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	return conn
}

func waitSubscribers(t *testing.T, hub *EventHub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Subscribers() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("subscribers = %d, want %d", hub.Subscribers(), want)
}

func TestEventHubStreamsEvents(t *testing.T) {
	hub := NewEventHub(testLogger())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()
	waitSubscribers(t, hub, 1)

	hub.Publish(drawing.Event{Type: drawing.EventClosed, DrawingID: 7, At: time.Now().UTC()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got drawing.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if got.Type != drawing.EventClosed || got.DrawingID != 7 {
		t.Fatalf("event = %+v", got)
	}
}

func TestEventHubFanout(t *testing.T) {
	hub := NewEventHub(testLogger())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	first := dialHub(t, srv)
	defer first.Close()
	second := dialHub(t, srv)
	defer second.Close()
	waitSubscribers(t, hub, 2)

	hub.Publish(drawing.Event{Type: drawing.EventSettled, DrawingID: 3, At: time.Now().UTC()})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got drawing.Event
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("read event: %v", err)
		}
		if got.DrawingID != 3 {
			t.Fatalf("event = %+v", got)
		}
	}
}

func TestEventHubStopDisconnects(t *testing.T) {
	hub := NewEventHub(testLogger())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()
	waitSubscribers(t, hub, 1)

	if err := hub.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := hub.Subscribers(); got != 0 {
		t.Fatalf("subscribers after stop = %d", got)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected closed connection after hub stop")
	}

	// Publishing into a stopped hub is a no-op.
	hub.Publish(drawing.Event{Type: drawing.EventOpened})
}
