package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
	"github.com/onurcolak/broadcast-dispatch-service/internal/queue"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
)

type runner interface {
	Run(ctx context.Context, req domain.DispatchRequest) error
}

// Pool runs a fixed number of workers, each handling one job at a time.
type Pool struct {
	runner  runner
	queue   queue.Queue
	workers int
	wg      sync.WaitGroup
}

func NewPool(r runner, q queue.Queue, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{runner: r, queue: q, workers: workers}
}

// Start begins consuming. Workers exit when ctx is cancelled; in-flight
// jobs are paused by the dispatcher so they can be resumed later.
func (p *Pool) Start(ctx context.Context) error {
	deliveries, err := p.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming dispatch queue: %w", err)
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i, deliveries)
	}

	logger.Infof("Dispatcher pool started with %d workers", p.workers)
	return nil
}

func (p *Pool) work(ctx context.Context, id int, deliveries <-chan queue.Delivery) {
	defer p.wg.Done()

	for d := range deliveries {
		if err := p.runner.Run(ctx, d.Request); err != nil {
			logger.Errorf("Worker %d: job %s aborted: %v", id, d.Request.JobID, err)
		}
		if err := d.Ack(); err != nil {
			logger.Warnf("Worker %d: failed to ack job %s: %v", id, d.Request.JobID, err)
		}
	}
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
	logger.Infof("Dispatcher pool stopped")
}
