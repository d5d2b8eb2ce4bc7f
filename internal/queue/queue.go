// Package queue carries dispatch requests from the API to the worker pool.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
)

var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)

// Delivery is one received request. Ack must be called once the request
// has been handled; drivers without acknowledgements ignore it.
type Delivery struct {
	Request domain.DispatchRequest
	ack     func() error
}

func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

type Queue interface {
	Publish(ctx context.Context, req domain.DispatchRequest) error
	// Consume streams deliveries until ctx is done or the queue is closed.
	Consume(ctx context.Context) (<-chan Delivery, error)
	Close() error
}

func encode(req domain.DispatchRequest) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dispatch request: %w", err)
	}
	return data, nil
}

func decode(data []byte) (domain.DispatchRequest, error) {
	var req domain.DispatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.DispatchRequest{}, fmt.Errorf("failed to unmarshal dispatch request: %w", err)
	}
	if req.JobID == "" {
		return domain.DispatchRequest{}, errors.New("dispatch request without job id")
	}
	return req, nil
}
