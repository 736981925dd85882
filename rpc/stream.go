package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"lendcore/core/events"
	"lendcore/core/types"
)

const (
	wsWriteTimeout     = 10 * time.Second
	defaultHubBuffer   = 64
	slowConsumerReason = "subscriber too slow"
)

// EventFilter selects the events a subscriber receives. Empty fields match
// everything.
type EventFilter struct {
	Types   map[string]struct{}
	Reserve string
}

func (f EventFilter) match(e *types.Event) bool {
	if len(f.Types) > 0 {
		if _, ok := f.Types[e.Type]; !ok {
			return false
		}
	}
	return f.Reserve == "" || strings.EqualFold(f.Reserve, e.Reserve())
}

type subscriber struct {
	filter EventFilter
	ch     chan types.Event
}

// EventHub fans pool events out to stream subscribers. A subscriber whose
// buffer is full is dropped and its channel closed.
type EventHub struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	next   uint64
	buffer int
}

func NewEventHub(buffer int) *EventHub {
	if buffer <= 0 {
		buffer = defaultHubBuffer
	}
	return &EventHub{subs: make(map[uint64]*subscriber), buffer: buffer}
}

// Emit implements events.Emitter.
func (h *EventHub) Emit(e events.Event) {
	rendered, ok := events.Render(e)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		if !sub.filter.match(rendered) {
			continue
		}
		select {
		case sub.ch <- *rendered:
		default:
			close(sub.ch)
			delete(h.subs, id)
		}
	}
}

// Subscribe registers a subscriber. The cancel func is idempotent.
func (h *EventHub) Subscribe(filter EventFilter) (<-chan types.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	sub := &subscriber{filter: filter, ch: make(chan types.Event, h.buffer)}
	h.subs[id] = sub
	return sub.ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if current, ok := h.subs[id]; ok && current == sub {
			close(sub.ch)
			delete(h.subs, id)
		}
	}
}

// Subscribers reports the live subscriber count.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func parseEventFilter(r *http.Request) (EventFilter, error) {
	var filter EventFilter
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("types")); raw != "" {
		filter.Types = make(map[string]struct{})
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Types[t] = struct{}{}
			}
		}
	}
	if raw := strings.TrimSpace(query.Get("reserve")); raw != "" {
		addr, err := parseAddress("reserve", raw)
		if err != nil {
			return filter, err
		}
		filter.Reserve = addr.Hex()
	}
	return filter, nil
}

// handleEventStream streams matching pool events as JSON text frames.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Subscribed ahead of the upgrade: a client sees every event committed
	// after its handshake.
	updates, cancel := s.cfg.Events.Subscribe(filter)
	defer cancel()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns(s.cfg.CORS.AllowedOrigins)})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	s.logger.Debug("event stream opened", "types", len(filter.Types), "reserve", filter.Reserve)

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				_ = conn.Close(websocket.StatusPolicyViolation, slowConsumerReason)
				return
			}
			if err := writeEvent(ctx, conn, update); err != nil {
				if websocket.CloseStatus(err) == -1 {
					_ = conn.Close(websocket.StatusInternalError, "stream error")
				}
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, e types.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// originPatterns converts CORS origins to the host patterns the websocket
// handshake matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
		if origin != "" {
			out = append(out, origin)
		}
	}
	return out
}
