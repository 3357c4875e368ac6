package slackbot

import (
	"context"

	"go.uber.org/zap"
)

// job is one unit of handler work.
type job struct {
	name string
	run  func(ctx context.Context)
}

// queue hands jobs to a single worker so events are processed one at a time
// in arrival order.
type queue struct {
	jobs   chan job
	logger *zap.Logger
}

func newQueue(size int, logger *zap.Logger) *queue {
	if size <= 0 {
		size = 1
	}
	return &queue{jobs: make(chan job, size), logger: logger}
}

// enqueue never blocks; it reports false when the queue is full.
func (q *queue) enqueue(j job) bool {
	select {
	case q.jobs <- j:
		return true
	default:
		q.logger.Warn("queue full, dropping event", zap.String("job", j.name))
		return false
	}
}

// run executes jobs until ctx is cancelled. A job that has started is allowed
// to finish; jobs still queued at shutdown are dropped.
func (q *queue) run(ctx context.Context) {
	jobCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			if n := len(q.jobs); n > 0 {
				q.logger.Warn("shutting down with queued events", zap.Int("dropped", n))
			}
			return
		case j := <-q.jobs:
			q.logger.Debug("running job", zap.String("job", j.name))
			j.run(jobCtx)
		}
	}
}
