package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/anonto42/recipe-swap/backend/internal/commenttree"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RedisBroker publishes events as JSON on one redis channel per recipe.
type RedisBroker struct {
	cli    *redis.Client
	prefix string
	log    zerolog.Logger
}

func NewRedisBroker(addr, password string) *RedisBroker {
	cli := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return NewRedisBrokerFromClient(cli)
}

func NewRedisBrokerFromClient(cli *redis.Client) *RedisBroker {
	return &RedisBroker{
		cli:    cli,
		prefix: DefaultChannelPrefix,
		log:    log.With().Str("component", "realtime-redis").Logger(),
	}
}

func (b *RedisBroker) channel(recipeID string) string {
	return b.prefix + recipeID
}

func (b *RedisBroker) Publish(ctx context.Context, recipeID string, ev commenttree.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	return errors.Wrapf(b.cli.Publish(ctx, b.channel(recipeID), data).Err(), "publish to %s", b.channel(recipeID))
}

// Subscribe returns once redis has confirmed the subscription, so events
// published after it returns are not missed.
func (b *RedisBroker) Subscribe(ctx context.Context, recipeID string, onEvent func(commenttree.Event)) (commenttree.Subscription, error) {
	pubsub := b.cli.Subscribe(ctx, b.channel(recipeID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.Wrapf(err, "subscribe to %s", b.channel(recipeID))
	}

	logger := b.log.With().Str("recipe_id", recipeID).Logger()
	go func() {
		for msg := range pubsub.Channel() {
			var ev commenttree.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn().Err(err).Msg("discarding malformed event")
				continue
			}
			onEvent(ev)
		}
	}()
	return &redisSubscription{pubsub: pubsub}, nil
}

func (b *RedisBroker) Close() error {
	return b.cli.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	once   sync.Once
	err    error
}

func (s *redisSubscription) Unsubscribe() error {
	s.once.Do(func() { s.err = s.pubsub.Close() })
	return s.err
}
