package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data, ok := <-c.Messages():
		if !ok {
			t.Fatalf("client closed")
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event received")
	}
	return Event{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Messages():
		t.Fatalf("unexpected event %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubRoutesByEventAndUser(t *testing.T) {
	hub := startHub(t)

	bobClock := NewClient("bob")
	bobAll := NewClient("bob")
	carol := NewClient("carol")
	hub.Register(bobClock, []string{EventClockEntry})
	hub.Register(bobAll, KnownEvents)
	hub.Register(carol, []string{EventClockEntry})

	ev, err := NewEvent(EventClockEntry, []string{"bob"}, map[string]string{"type": "IN"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	hub.Dispatch(ev)

	if got := receive(t, bobClock); got.Type != EventClockEntry || string(got.Payload) != `{"type":"IN"}` {
		t.Fatalf("unexpected event %+v", got)
	}
	receive(t, bobAll)
	expectNothing(t, carol)

	invite, _ := NewEvent(EventGroupInvite, []string{"bob", "carol"}, nil)
	hub.Dispatch(invite)
	receive(t, bobAll)
	expectNothing(t, bobClock)
	expectNothing(t, carol)
}

func TestHubUnregisterClosesClient(t *testing.T) {
	hub := startHub(t)
	c := NewClient("bob")
	hub.Register(c, []string{EventClockEntry})
	hub.Unregister(c)

	select {
	case _, ok := <-c.Messages():
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("client not closed")
	}

	// unregistering twice must not panic
	hub.Unregister(c)
}

func TestBridgeDeliversPublishedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := startHub(t)
	c := NewClient("alice")
	hub.Register(c, []string{EventMemberJoined})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = Bridge(ctx, rdb, hub, zerolog.Nop()) }()

	pub := NewPublisher(rdb, 500*time.Millisecond)
	ev, _ := NewEvent(EventMemberJoined, []string{"alice"}, map[string]string{"user": "bob"})

	// the subscription is asynchronous; publish until it is observed
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := pub.Publish(context.Background(), ev); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		select {
		case data := <-c.Messages():
			if !strings.Contains(string(data), `"member_joined"`) {
				t.Fatalf("unexpected payload %s", data)
			}
			return
		case <-time.After(50 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatalf("event never bridged")
		}
	}
}

func TestWebsocketStream(t *testing.T) {
	hub := startHub(t)
	ws := NewWSServer(hub, func(*http.Request) bool { return true }, zerolog.Nop())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.Serve(w, r, "bob", []string{EventSessionCreated})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Connections(EventSessionCreated) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ev, _ := NewEvent(EventSessionCreated, []string{"bob"}, map[string]string{"sessionId": "s1"})
	hub.Dispatch(ev)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.Contains(string(data), `"s1"`) {
		t.Fatalf("unexpected message %s", data)
	}
	conn.Close()

	for hub.Connections(EventSessionCreated) != 0 {
		if time.Now().After(deadline.Add(time.Second)) {
			t.Fatalf("connection never unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
