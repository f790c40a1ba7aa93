// Package realtime fans comment change events out to every subscriber of a
// recipe. Hub keeps everything in process; RedisBroker carries the events
// over redis pub/sub so several server instances share one stream.
package realtime

import (
	"context"

	"github.com/anonto42/recipe-swap/backend/internal/commenttree"
)

// DefaultChannelPrefix namespaces the per-recipe redis channels.
const DefaultChannelPrefix = "recipeswap:comments:"

// Publisher sends a change event to every subscriber of a recipe.
type Publisher interface {
	Publish(ctx context.Context, recipeID string, ev commenttree.Event) error
}

// Broker is both ends of the event stream.
type Broker interface {
	Publisher
	commenttree.ChangeSource
}

var (
	_ Broker = (*Hub)(nil)
	_ Broker = (*RedisBroker)(nil)
)
