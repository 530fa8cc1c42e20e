package stats

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const DefaultChannel = "rtlmsd:stats"

// Publisher is the subset of *redis.Client used to publish reports.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes JSON encoded reports on a redis channel.
type RedisPublisher struct {
	Client  Publisher
	Channel string
	Timeout time.Duration
}

// NewRedisPublisher connects to the redis server at addr.
func NewRedisPublisher(addr, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}

	return &RedisPublisher{
		Client: redis.NewClient(&redis.Options{
			Addr:        addr,
			DialTimeout: 5 * time.Second,
			MaxRetries:  2,
		}),
		Channel: channel,
		Timeout: time.Second,
	}
}

func (p *RedisPublisher) Encode(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal report")
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	if err := p.Client.Publish(ctx, p.Channel, payload).Err(); err != nil {
		return errors.Wrapf(err, "publish to %q", p.Channel)
	}

	return nil
}

func (p *RedisPublisher) Close() error {
	if c, ok := p.Client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
