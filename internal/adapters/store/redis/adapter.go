package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"fedwatch.dashboard/internal/core/domain"
	"fedwatch.dashboard/internal/core/logger"
	"fedwatch.dashboard/internal/core/ports"
)

const (
	JobUpdateChannel = "fedwatch:job:updates"
	sessionPrefix    = "fedwatch:session:"
)

// Adapter keeps dashboard sessions and job update events in the dashboard's
// own redis.
type Adapter struct {
	client *redis.Client
}

var (
	_ ports.SessionStore    = (*Adapter)(nil)
	_ ports.JobUpdatePubSub = (*Adapter)(nil)
)

func NewAdapter(url string) (*Adapter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewWithClient(redis.NewClient(opts)), nil
}

func NewWithClient(client *redis.Client) *Adapter {
	return &Adapter{client: client}
}

func (r *Adapter) Client() *redis.Client {
	return r.client
}

// Session store
func (r *Adapter) Save(ctx context.Context, token, username string, ttl time.Duration) error {
	return r.client.Set(ctx, sessionPrefix+token, username, ttl).Err()
}

func (r *Adapter) Lookup(ctx context.Context, token string) (string, error) {
	username, err := r.client.Get(ctx, sessionPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return username, nil
}

func (r *Adapter) Delete(ctx context.Context, token string) error {
	return r.client.Del(ctx, sessionPrefix+token).Err()
}

// PubSub
func (r *Adapter) PublishJobUpdate(ctx context.Context, update domain.JobUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, JobUpdateChannel, data).Err()
}

// SubscribeJobUpdates streams job updates until ctx is cancelled.
func (r *Adapter) SubscribeJobUpdates(ctx context.Context) (<-chan domain.JobUpdate, error) {
	pubsub := r.client.Subscribe(ctx, JobUpdateChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}
	ch := make(chan domain.JobUpdate)

	go func() {
		defer pubsub.Close()
		defer close(ch)

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var update domain.JobUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
					logger.Warn("Dropping malformed job update", "error", err)
					continue
				}
				select {
				case ch <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
