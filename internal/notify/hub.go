// Package notify fans realtime events out to websocket connections. Every
// API instance runs one Hub; events reach all instances through Redis
// pub/sub.
package notify

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

const (
	EventSessionCreated = "session_created"
	EventClockEntry     = "clock_entry"
	EventGroupInvite    = "group_invite"
	EventMemberJoined   = "member_joined"
)

// KnownEvents lists the event types a connection may subscribe to.
var KnownEvents = []string{EventSessionCreated, EventClockEntry, EventGroupInvite, EventMemberJoined}

type Event struct {
	Type    string          `json:"type"`
	UserIDs []string        `json:"userIds"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent encodes payload for the given recipients.
func NewEvent(eventType string, userIDs []string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, UserIDs: userIDs, Payload: raw}, nil
}

type subscription struct {
	client *Client
	events []string
}

// Hub owns the event_type -> user -> connections index. Only the Run
// goroutine touches it; everything else goes through channels.
type Hub struct {
	register   chan subscription
	unregister chan *Client
	dispatch   chan Event
	count      chan countRequest
	done       chan struct{}

	subs map[string]map[string]map[*Client]struct{}
	log  zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		register:   make(chan subscription),
		unregister: make(chan *Client),
		dispatch:   make(chan Event, 256),
		count:      make(chan countRequest),
		done:       make(chan struct{}),
		subs:       make(map[string]map[string]map[*Client]struct{}),
		log:        log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		case sub := <-h.register:
			h.add(sub)
		case c := <-h.unregister:
			h.remove(c)
		case ev := <-h.dispatch:
			h.deliver(ev)
		case req := <-h.count:
			n := 0
			for _, conns := range h.subs[req.event] {
				n += len(conns)
			}
			req.reply <- n
		}
	}
}

// Register subscribes c to events. It reports false once the hub stopped.
func (h *Hub) Register(c *Client, events []string) bool {
	select {
	case h.register <- subscription{client: c, events: events}:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

type countRequest struct {
	event string
	reply chan int
}

// Connections returns the number of connections subscribed to eventType.
func (h *Hub) Connections(eventType string) int {
	req := countRequest{event: eventType, reply: make(chan int, 1)}
	select {
	case h.count <- req:
		return <-req.reply
	case <-h.done:
		return 0
	}
}

// Dispatch queues ev for local delivery. It drops the event when the queue
// is full rather than blocking the caller.
func (h *Hub) Dispatch(ev Event) {
	select {
	case h.dispatch <- ev:
	default:
		h.log.Warn().Str("event", ev.Type).Msg("notification queue full, event dropped")
	}
}

func (h *Hub) add(sub subscription) {
	for _, event := range sub.events {
		users, ok := h.subs[event]
		if !ok {
			users = make(map[string]map[*Client]struct{})
			h.subs[event] = users
		}
		conns, ok := users[sub.client.userID]
		if !ok {
			conns = make(map[*Client]struct{})
			users[sub.client.userID] = conns
		}
		conns[sub.client] = struct{}{}
	}
	sub.client.events = sub.events
}

func (h *Hub) remove(c *Client) {
	if c.closed {
		return
	}
	for _, event := range c.events {
		users := h.subs[event]
		if users == nil {
			continue
		}
		conns := users[c.userID]
		delete(conns, c)
		if len(conns) == 0 {
			delete(users, c.userID)
		}
		if len(users) == 0 {
			delete(h.subs, event)
		}
	}
	c.closed = true
	close(c.send)
}

func (h *Hub) deliver(ev Event) {
	users := h.subs[ev.Type]
	if len(users) == 0 {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.Type).Msg("encode notification")
		return
	}

	var slow []*Client
	for _, userID := range ev.UserIDs {
		for c := range users[userID] {
			select {
			case c.send <- data:
			default:
				slow = append(slow, c)
			}
		}
	}
	for _, c := range slow {
		h.log.Warn().Str("user_id", c.userID).Msg("slow notification consumer disconnected")
		h.remove(c)
	}
}

func (h *Hub) closeAll() {
	seen := make(map[*Client]struct{})
	for _, users := range h.subs {
		for _, conns := range users {
			for c := range conns {
				seen[c] = struct{}{}
			}
		}
	}
	for c := range seen {
		h.remove(c)
	}
}

// Client is one subscribed connection. send is closed by the hub when the
// client is removed.
type Client struct {
	userID string
	send   chan []byte
	events []string
	closed bool
}

func NewClient(userID string) *Client {
	return &Client{userID: userID, send: make(chan []byte, 16)}
}

// Messages yields encoded events until the hub drops the client.
func (c *Client) Messages() <-chan []byte {
	return c.send
}
