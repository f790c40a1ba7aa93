package realtime

import (
	"context"
	"sync"

	"github.com/anonto42/recipe-swap/backend/internal/commenttree"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// subscriberBuffer is how many events a slow subscriber may lag behind
// before further events for it are dropped.
const subscriberBuffer = 64

// Hub is an in-process Broker. Each subscriber gets its own goroutine, so a
// slow handler never blocks a publisher, and events reach a subscriber in
// publish order.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*hubSubscription]struct{}
	log  zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*hubSubscription]struct{}),
		log:  log.With().Str("component", "realtime-hub").Logger(),
	}
}

type hubSubscription struct {
	hub      *Hub
	recipeID string
	events   chan commenttree.Event
	once     sync.Once
}

func (s *hubSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		subs := s.hub.subs[s.recipeID]
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.hub.subs, s.recipeID)
		}
		close(s.events)
	})
	return nil
}

func (h *Hub) Subscribe(_ context.Context, recipeID string, onEvent func(commenttree.Event)) (commenttree.Subscription, error) {
	sub := &hubSubscription{
		hub:      h,
		recipeID: recipeID,
		events:   make(chan commenttree.Event, subscriberBuffer),
	}
	go func() {
		for ev := range sub.events {
			onEvent(ev)
		}
	}()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[recipeID] == nil {
		h.subs[recipeID] = make(map[*hubSubscription]struct{})
	}
	h.subs[recipeID][sub] = struct{}{}
	return sub, nil
}

func (h *Hub) Publish(_ context.Context, recipeID string, ev commenttree.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[recipeID] {
		select {
		case sub.events <- ev:
		default:
			h.log.Warn().Str("recipe_id", recipeID).Str("entity", string(ev.Entity)).Str("change", string(ev.Change)).
				Msg("subscriber lagging, event dropped")
		}
	}
	return nil
}

// Subscribers reports how many live subscriptions a recipe has.
func (h *Hub) Subscribers(recipeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[recipeID])
}
