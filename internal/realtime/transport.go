package realtime

import (
	"sort"
	"sync"
)

// Listener receives messages for one event name.
type Listener func(Message)

// ListenerID identifies a registration so it can be removed.
type ListenerID uint64

// Transport delivers push events.
type Transport interface {
	On(event string, l Listener) ListenerID
	Off(event string, id ListenerID)
}

// Hub is an in-memory Transport. Publish calls matching listeners
// synchronously, in registration order, outside the hub's lock.
type Hub struct {
	mu        sync.Mutex
	next      ListenerID
	listeners map[string]map[ListenerID]Listener
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{listeners: make(map[string]map[ListenerID]Listener)}
}

// On registers l for messages whose Type is event.
func (h *Hub) On(event string, l Listener) ListenerID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	if h.listeners[event] == nil {
		h.listeners[event] = make(map[ListenerID]Listener)
	}
	h.listeners[event][h.next] = l
	return h.next
}

// Off removes a registration. Unknown ids are ignored.
func (h *Hub) Off(event string, id ListenerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners[event], id)
	if len(h.listeners[event]) == 0 {
		delete(h.listeners, event)
	}
}

// Publish delivers msg and returns the number of listeners reached.
func (h *Hub) Publish(msg Message) int {
	h.mu.Lock()
	regs := h.listeners[msg.Type]
	ids := make([]ListenerID, 0, len(regs))
	for id := range regs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]Listener, len(ids))
	for i, id := range ids {
		fns[i] = regs[id]
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
	return len(fns)
}

// Listeners returns how many listeners are registered for event.
func (h *Hub) Listeners(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[event])
}
