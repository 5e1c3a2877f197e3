package events

import (
	"sync"
)

// subscriberBuffer is the per-subscriber queue depth.
const subscriberBuffer = 16

// Notification is a realtime change pushed to a user's open streams.
type Notification struct {
	EventID  int64          `json:"event_id,omitempty"`
	UserID   string         `json:"-"`
	Type     string         `json:"type"`
	EntityID string         `json:"entity_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Hub fans notifications out to per-user subscribers. Publish never blocks:
// a subscriber whose buffer is full misses the notification.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan Notification
	nextID int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan Notification)}
}

// Subscribe registers a stream for userID. The returned func unsubscribes and
// closes the channel; calling it more than once is safe.
func (h *Hub) Subscribe(userID string) (<-chan Notification, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Notification, subscriberBuffer)
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan Notification)
	}
	h.subs[userID][id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if userSubs, ok := h.subs[userID]; ok {
				delete(userSubs, id)
				if len(userSubs) == 0 {
					delete(h.subs, userID)
				}
			}
			close(ch)
		})
	}
}

// Publish delivers n to every subscriber of n.UserID and reports how many
// received it.
func (h *Hub) Publish(n Notification) int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for _, ch := range h.subs[n.UserID] {
		select {
		case ch <- n:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of open streams for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}
