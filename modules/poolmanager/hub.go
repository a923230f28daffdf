package poolmanager

import (
	"sync"

	"github.com/MobiusL/ecoinpool/modules"
)

// Hub tracks which pools observe which other pools' worker changes. It
// implements modules.NotificationHub. Coordinators replace their whole
// subscription set on every worker reload and clear it on shutdown.
type Hub struct {
	// observed maps an observing pool to the set of pool ids it watches.
	observed map[modules.PoolID][]modules.PoolID

	mu sync.RWMutex
}

// NewHub returns a hub with no subscriptions.
func NewHub() *Hub {
	return &Hub{
		observed: make(map[modules.PoolID][]modules.PoolID),
	}
}

// SetSubscriptions replaces the set of pool ids whose worker changes the
// given pool observes. An empty set clears the pool's subscriptions.
func (h *Hub) SetSubscriptions(id modules.PoolID, observed []modules.PoolID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(observed) == 0 {
		delete(h.observed, id)
		return
	}
	set := make([]modules.PoolID, len(observed))
	copy(set, observed)
	h.observed[id] = set
}

// Subscribers returns the ids of every pool observing worker changes of the
// given pool.
func (h *Hub) Subscribers(of modules.PoolID) []modules.PoolID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var subs []modules.PoolID
	for observer, observed := range h.observed {
		for _, id := range observed {
			if id == of {
				subs = append(subs, observer)
				break
			}
		}
	}
	return subs
}
