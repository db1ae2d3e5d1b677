package feed

import (
	"sync"
	"time"

	"friction-gate/internal/domain"
	"github.com/google/uuid"
)

// DefaultHistory is how many published comments a hub remembers.
const DefaultHistory = 50

const subscriberBuffer = 16

// Hub holds the public comment feed and fans each publication out to
// subscribers. A slow subscriber loses its oldest pending update instead of
// blocking the publisher.
type Hub struct {
	history int
	now     func() time.Time
	newID   func() string

	mu          sync.RWMutex
	recent      []domain.PublishedComment
	subscribers map[chan domain.FeedEvent]struct{}
}

func NewHub(history int) *Hub {
	return NewHubWithClock(history, time.Now)
}

// NewHubWithClock is test-only for deterministic timestamps.
func NewHubWithClock(history int, now func() time.Time) *Hub {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Hub{
		history:     history,
		now:         now,
		newID:       uuid.NewString,
		subscribers: make(map[chan domain.FeedEvent]struct{}),
	}
}

// Publish appends text to the feed and notifies subscribers.
func (h *Hub) Publish(text string) domain.PublishedComment {
	h.mu.Lock()
	defer h.mu.Unlock()

	comment := domain.PublishedComment{
		ID:          h.newID(),
		Text:        text,
		PublishedAt: h.now(),
	}
	h.recent = append(h.recent, comment)
	if over := len(h.recent) - h.history; over > 0 {
		h.recent = append(h.recent[:0:0], h.recent[over:]...)
	}
	h.broadcastLocked(domain.FeedEvent{Type: domain.FeedComment, Comments: []domain.PublishedComment{comment}})
	return comment
}

// Recent returns up to limit comments, newest first. A non-positive limit
// returns the whole history.
func (h *Hub) Recent(limit int) []domain.PublishedComment {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.recentLocked(limit)
}

// Subscribe returns a channel that first receives a snapshot of the history
// and then every new comment. The caller must invoke cancel to avoid leaks.
func (h *Hub) Subscribe() (<-chan domain.FeedEvent, func()) {
	ch := make(chan domain.FeedEvent, subscriberBuffer)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	ch <- domain.FeedEvent{Type: domain.FeedSnapshot, Comments: h.recentLocked(0)}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Subscribers reports how many subscriptions are open.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) recentLocked(limit int) []domain.PublishedComment {
	n := len(h.recent)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.PublishedComment, 0, n)
	for i := len(h.recent) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.recent[i])
	}
	return out
}

func (h *Hub) broadcastLocked(event domain.FeedEvent) {
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}
