package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

var (
	defaultNumWorkers   uint = 4
	defaultJobQueueSize uint = 256
)

// poolConfig configures the re-embed worker pool.
type poolConfig struct {
	// NumWorkers is the number of concurrent re-embed workers.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel.
	QueueSize uint

	// Process handles one record. It runs on a worker goroutine.
	Process func(ctx context.Context, r vector.Record)

	Logger *slog.Logger
}

// pool fans records out to a fixed set of workers. Jobs run on a context
// detached from the caller's cancellation, so once queued a job always
// completes; cancellation only stops Enqueue.
type pool struct {
	config *poolConfig
	queue  chan vector.Record
	ctx    context.Context
	wg     sync.WaitGroup
}

// newPool starts the worker goroutines.
func newPool(ctx context.Context, c *poolConfig) (*pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &pool{
		config: c,
		queue:  make(chan vector.Record, c.QueueSize),
		ctx:    context.WithoutCancel(ctx),
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}
	return p, nil
}

// Enqueue blocks until the record is queued or ctx is done. It reports
// whether the record was queued.
func (p *pool) Enqueue(ctx context.Context, r vector.Record) bool {
	select {
	case p.queue <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close stops accepting jobs and waits for queued jobs to drain.
func (p *pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

func (p *pool) worker(id uint) {
	defer p.wg.Done()
	p.config.Logger.Debug("re-embed worker started", "worker_id", id)

	for r := range p.queue {
		p.config.Process(p.ctx, r)
	}

	p.config.Logger.Debug("re-embed worker stopped", "worker_id", id)
}
