package worker

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/internal/metrics"
)

// Pool drains the task queue with a fixed number of worker goroutines.
type Pool struct {
	tasks       domain.TaskRepository
	coordinator *Coordinator
	parallelism int
	metrics     *metrics.Metrics
	log         *logrus.Entry
}

func NewPool(tasks domain.TaskRepository, coordinator *Coordinator, parallelism int,
	m *metrics.Metrics, log *logrus.Logger) *Pool {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Pool{
		tasks:       tasks,
		coordinator: coordinator,
		parallelism: parallelism,
		metrics:     m,
		log:         log.WithField("component", "pool"),
	}
}

// Run blocks until ctx is cancelled and every in-flight task has finished.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.parallelism; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.loop(ctx, worker)
		}(i)
	}
	wg.Wait()
	p.log.Info("worker pool drained")
}

func (p *Pool) loop(ctx context.Context, worker int) {
	log := p.log.WithField("worker", worker)
	for {
		taskID, err := p.tasks.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("dequeue failed")
			continue
		}
		if p.metrics != nil {
			p.metrics.QueueWaiting.Inc()
		}
		if err := p.coordinator.Process(ctx, taskID); err != nil {
			log.WithField("task_id", taskID).WithError(err).Error("task processing error")
		}
		if p.metrics != nil {
			p.metrics.QueueWaiting.Dec()
		}
	}
}
