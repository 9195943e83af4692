package monitor

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	waitFor(t, func() bool { return hub.ClientCount() == 1 })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishReachesClient(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	conn := dial(t, hub)

	err := hub.Publish(Event{
		Type:  EventGeneration,
		RunID: "run-1",
		Data:  map[string]float64{"best_reward": 4.5},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got struct {
		Type  string             `json:"type"`
		RunID string             `json:"run_id"`
		Time  time.Time          `json:"time"`
		Data  map[string]float64 `json:"data"`
	}
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if got.Type != EventGeneration || got.RunID != "run-1" || got.Data["best_reward"] != 4.5 {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.Time.IsZero() {
		t.Fatal("event time not stamped")
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	conn := dial(t, hub)
	_ = conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestCloseRejectsPublish(t *testing.T) {
	hub := NewHub(nil)
	conn := dial(t, hub)
	hub.Close()
	if hub.ClientCount() != 0 {
		t.Fatalf("clients remain after close: %d", hub.ClientCount())
	}
	if err := hub.Publish(Event{Type: EventRunFinished}); !errors.Is(err, ErrHubClosed) {
		t.Fatalf("expected ErrHubClosed, got %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close")
	}
}

func TestPublishWithoutClients(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	if err := hub.Publish(Event{Type: EventRunStarted, RunID: "r"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
}
