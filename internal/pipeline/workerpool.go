package pipeline

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"
)

// job is one unit of bounded-concurrency work submitted to a pool.
// Adapted from the teacher's internal/services/workers.Pool: a fixed
// number of goroutines drain a buffered channel until it is closed, each
// job running to completion before picking up the next.
type job func(ctx context.Context)

// pool runs jobs across a bounded number of goroutines, used by
// IngestBatch to cap per-batch concurrency at WorkersConfig.PoolSize
// (§5's worker-pool-size requirement).
type pool struct {
	jobs       chan job
	maxWorkers int
	wg         sync.WaitGroup
	logger     arbor.ILogger
}

func newPool(maxWorkers int, logger arbor.ILogger) *pool {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &pool{
		jobs:       make(chan job, maxWorkers*2),
		maxWorkers: maxWorkers,
		logger:     logger,
	}
}

func (p *pool) start(ctx context.Context) {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *pool) submit(j job) {
	p.jobs <- j
}

// wait closes the job channel and blocks until every submitted job has run.
func (p *pool) wait() {
	close(p.jobs)
	p.wg.Wait()
}

func (p *pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for j := range p.jobs {
		j(ctx)
	}
}
