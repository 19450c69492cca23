package federation

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/memory"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is one federation fan-out for the pool to execute. The item is
// already committed locally when the job is queued.
type Job struct {
	Item      *memory.EncryptedItem
	TargetIDs []string
}

// PoolConfig is the configuration options for the federation pool.
type PoolConfig struct {
	// Manager performs the actual broadcasts.
	Manager *Manager

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool fans federated writes out asynchronously so the store path never
// blocks on peer delivery. Federation is best effort; a dropped or failed
// job never unwinds the local commit.
type Pool struct {
	config *PoolConfig
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *PoolConfig) (*Pool, error) {
	if c.Manager == nil {
		return nil, fmt.Errorf("federation pool requires a manager")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Enqueue submits a federation job for processing by the pool.
// Returns true if enqueued, false if the queue is full, resulting in the
// job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("federation job queued",
			zap.String("item_id", job.Item.ID),
			zap.Int("targets", len(job.TargetIDs)),
		)
		return true
	default:
		p.logger.Error("federation job not queued, queue full, job dropped",
			zap.String("item_id", job.Item.ID),
			zap.Int("targets", len(job.TargetIDs)),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the API server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the
// jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("federation worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("federation worker stopped", zap.Uint("worker_id", id))
}

func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	result, err := p.config.Manager.Broadcast(ctx, job.Item, job.TargetIDs)
	if err != nil {
		p.logger.Error("async federation failed",
			zap.String("item_id", job.Item.ID),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("item federated",
		zap.String("item_id", job.Item.ID),
		zap.Int("synced_count", result.SyncedCount),
		zap.Int("failures", len(result.Errors)),
	)
}
