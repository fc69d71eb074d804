package lists

import (
	"sync"

	"github.com/google/uuid"

	"cinesync/models"
)

// hub is a per-list broadcast with last-value caching: new subscribers
// immediately receive the current snapshot instead of waiting for the
// next change. Emissions never block the publisher; a slow subscriber's
// pending snapshot is replaced by the newest one.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[string]chan []models.ListItem
	last map[string][]models.ListItem
}

func newHub() *hub {
	return &hub{
		subs: make(map[string]map[string]chan []models.ListItem),
		last: make(map[string][]models.ListItem),
	}
}

func (h *hub) subscribe(list string) (<-chan []models.ListItem, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan []models.ListItem, 1)
	if h.subs[list] == nil {
		h.subs[list] = make(map[string]chan []models.ListItem)
	}
	h.subs[list][id] = ch

	if last, ok := h.last[list]; ok {
		ch <- last
	}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[list]; ok {
			if _, ok := set[id]; ok {
				delete(set, id)
				close(ch)
			}
		}
	}
	return ch, cancel
}

func (h *hub) publish(list string, items []models.ListItem) {
	snapshot := make([]models.ListItem, 0, len(items))
	snapshot = append(snapshot, items...)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.last[list] = snapshot
	for _, ch := range h.subs[list] {
		select {
		case ch <- snapshot:
		default:
			// Drain the stale pending snapshot, then deliver the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
