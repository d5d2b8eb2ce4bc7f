package queue

import (
	"context"
	"sync"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
)

// Memory is an in-process queue backed by a buffered channel.
type Memory struct {
	ch        chan domain.DispatchRequest
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemory(buffer int) *Memory {
	if buffer < 1 {
		buffer = 1
	}
	return &Memory{
		ch:   make(chan domain.DispatchRequest, buffer),
		done: make(chan struct{}),
	}
}

// Publish never blocks. A full buffer yields ErrFull; queued jobs are picked
// up again by the reconciler.
func (m *Memory) Publish(ctx context.Context, req domain.DispatchRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	select {
	case m.ch <- req:
		return nil
	case <-m.done:
		return ErrClosed
	default:
		return ErrFull
	}
}

func (m *Memory) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case req := <-m.ch:
				select {
				case out <- Delivery{Request: req}:
				case <-ctx.Done():
					return
				case <-m.done:
					return
				}
			}
		}
	}()

	return out, nil
}

func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}
