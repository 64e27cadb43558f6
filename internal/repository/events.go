package repository

import (
	"context"
	"sync"

	"github.com/smartdevs17/qrcode-generator/internal/models"
)

// eventHub fans history events out to subscribers without ever blocking the publisher
type eventHub struct {
	mu   sync.RWMutex
	subs map[chan models.HistoryEvent]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[chan models.HistoryEvent]struct{})}
}

func (h *eventHub) subscribe(ctx context.Context, buffer int) <-chan models.HistoryEvent {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.HistoryEvent, buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// publish returns how many subscribers missed the event
func (h *eventHub) publish(event models.HistoryEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			dropped++
		}
	}
	return dropped
}

func (h *eventHub) subscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
