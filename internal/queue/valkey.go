package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/redis"
)

const popTimeout = time.Second

type listClient interface {
	Push(ctx context.Context, key, value string) error
	BlockingPop(ctx context.Context, key string, timeout time.Duration) (string, error)
}

// Valkey keeps requests in a list: LPUSH to publish, BRPOP to consume.
type Valkey struct {
	client    listClient
	key       string
	done      chan struct{}
	closeOnce sync.Once
}

func NewValkey(client listClient, key string) *Valkey {
	return &Valkey{client: client, key: key, done: make(chan struct{})}
}

func (v *Valkey) Publish(ctx context.Context, req domain.DispatchRequest) error {
	select {
	case <-v.done:
		return ErrClosed
	default:
	}

	data, err := encode(req)
	if err != nil {
		return err
	}
	return v.client.Push(ctx, v.key, string(data))
}

func (v *Valkey) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-v.done:
				return
			default:
			}

			raw, err := v.client.BlockingPop(ctx, v.key, popTimeout)
			if err != nil {
				if errors.Is(err, redis.ErrEmpty) {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				logger.Errorf("Failed to pop dispatch request: %v", err)
				select {
				case <-time.After(popTimeout):
				case <-ctx.Done():
					return
				case <-v.done:
					return
				}
				continue
			}

			req, err := decode([]byte(raw))
			if err != nil {
				logger.Warnf("Dropping malformed dispatch request: %v", err)
				continue
			}

			select {
			case out <- Delivery{Request: req}:
			case <-ctx.Done():
				return
			case <-v.done:
				return
			}
		}
	}()

	return out, nil
}

func (v *Valkey) Close() error {
	v.closeOnce.Do(func() { close(v.done) })
	return nil
}
