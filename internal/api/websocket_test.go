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

	"github.com/nerrad567/cdl-core/internal/auth"
	"github.com/nerrad567/cdl-core/internal/events"
	"github.com/nerrad567/cdl-core/internal/infrastructure/logging"
)

func testClient(hub *Hub, id auth.Identity, channels ...string) *WSClient {
	c := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 8),
		identity:      id,
		subscriptions: make(map[string]struct{}),
	}
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	hub.Register(c)
	return c
}

func received(c *WSClient) int {
	return len(c.send)
}

func TestHub_PublishFiltersByOwner(t *testing.T) {
	hub := NewHub(testWSCfg, logging.Discard())
	queued := string(events.ExperimentQueued)

	owner := testClient(hub, userU, queued)
	other := testClient(hub, userV, queued)
	staff := testClient(hub, staffS, queued)
	admin := testClient(hub, adminA, queued)
	unsubscribed := testClient(hub, userU)

	hub.Publish(context.Background(), events.Event{
		Type:         events.ExperimentQueued,
		ExperimentID: "e-1",
		OwnerID:      userU.ID,
	})

	tests := []struct {
		name   string
		client *WSClient
		want   int
	}{
		{"owner", owner, 1},
		{"other user", other, 0},
		{"staff", staff, 1},
		{"admin without staff", admin, 0},
		{"not subscribed", unsubscribed, 0},
	}
	for _, tt := range tests {
		if got := received(tt.client); got != tt.want {
			t.Errorf("%s received %d messages, want %d", tt.name, got, tt.want)
		}
	}

	var msg WSMessage
	if err := json.Unmarshal(<-owner.send, &msg); err != nil {
		t.Fatalf("decoding message: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != queued {
		t.Errorf("message = %+v", msg)
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(testWSCfg, logging.Discard())
	metrics := NewMetrics(nil)
	hub.setGauge(metrics.WSClients)

	c := testClient(hub, userU)
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(c)
	hub.Unregister(c)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel still open after Unregister")
	}

	// Sending to a departed client must not panic.
	c.trySend([]byte("late"))
}

func TestWSClient_Subscription(t *testing.T) {
	hub := NewHub(testWSCfg, logging.Discard())
	c := testClient(hub, userU)

	c.handleMessage([]byte(`{"type":"subscribe","id":"1","payload":{"channels":["experiment.queued","result.recorded"]}}`))
	if !c.isSubscribed("experiment.queued") || !c.isSubscribed("result.recorded") {
		t.Error("subscribe did not register channels")
	}

	c.handleMessage([]byte(`{"type":"unsubscribe","id":"2","payload":{"channels":["result.recorded"]}}`))
	if c.isSubscribed("result.recorded") {
		t.Error("unsubscribe did not remove channel")
	}

	c.handleMessage([]byte(`{"type":"subscribe","id":"3","payload":{"channels":["device.state"]}}`))
	if c.isSubscribed("device.state") {
		t.Error("unknown channel was subscribed")
	}

	c.handleMessage([]byte(`not json`))

	want := []string{WSTypeResponse, WSTypeResponse, WSTypeError, WSTypeError}
	for i, typ := range want {
		var msg WSMessage
		if err := json.Unmarshal(<-c.send, &msg); err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if msg.Type != typ {
			t.Errorf("message %d type = %q, want %q", i, msg.Type, typ)
		}
	}
}

func dialWS(t *testing.T, srv *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws" + query
	return websocket.DefaultDialer.Dial(url, nil)
}

func readWSMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("reading websocket message: %v", err)
	}
	return msg
}

func TestWebSocket_Unauthenticated(t *testing.T) {
	env := testServer(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	for _, query := range []string{"", "?token=garbage", "?ticket=unknown"} {
		_, resp, err := dialWS(t, srv, query)
		if err == nil {
			t.Fatalf("dial %q succeeded, want failure", query)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("dial %q response = %v, want 401", query, resp)
		}
	}
}

func TestWebSocket_ReceivesOwnEvents(t *testing.T) {
	env := testServer(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	w := env.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", tokenFor(t, userU), nil)
	ticket, _ := decodeBody[map[string]any](t, w)["ticket"].(string)

	conn, _, err := dialWS(t, srv, "?ticket="+ticket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{string(events.ExperimentQueued)}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if resp := readWSMessage(t, conn); resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}

	// Another user's submission is filtered; the caller's own arrives.
	env.createExperiment(t, tokenFor(t, userV), "not-mine")
	mine := env.createExperiment(t, tokenFor(t, userU), "mine")

	msg := readWSMessage(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != string(events.ExperimentQueued) {
		t.Fatalf("event = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["experimentId"] != mine.ExperimentID {
		t.Errorf("event experimentId = %v, want %s", payload["experimentId"], mine.ExperimentID)
	}

	// The ticket is single-use.
	if _, _, err := dialWS(t, srv, "?ticket="+ticket); err == nil {
		t.Error("ticket accepted a second time")
	}
}
