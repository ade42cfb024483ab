package llm

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPoolConfig configures the embedding worker pool.
type WorkerPoolConfig struct {
	MaxConcurrent int // Maximum concurrent provider calls (default: 8)
}

// DefaultWorkerPoolConfig returns sensible defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		MaxConcurrent: 8,
	}
}

// WorkerPool runs provider calls with bounded parallelism. A semaphore
// limits outstanding requests so a new one starts as soon as a slot frees.
type WorkerPool struct {
	config WorkerPoolConfig
	logger *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(config WorkerPoolConfig, logger *zap.Logger) *WorkerPool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = DefaultWorkerPoolConfig().MaxConcurrent
	}
	return &WorkerPool{
		config: config,
		logger: logger.Named("llm-worker-pool"),
	}
}

// MaxConcurrent returns the concurrency limit.
func (p *WorkerPool) MaxConcurrent() int {
	return p.config.MaxConcurrent
}

// WorkItem represents a unit of work to be processed.
type WorkItem[T any] struct {
	ID      string                               // For logging/tracking
	Execute func(ctx context.Context) (T, error) // The work to be executed
}

// WorkResult represents the result of a work item.
type WorkResult[T any] struct {
	ID     string
	Result T
	Err    error
}

// Process executes all work items with bounded parallelism and returns the
// results in submission order. Every item gets a result: failures do not stop
// the others, and items still waiting for a slot when ctx is cancelled report
// ctx.Err(). onProgress is called from a single goroutine.
func Process[T any](
	ctx context.Context,
	pool *WorkerPool,
	items []WorkItem[T],
	onProgress func(completed, total int),
) []WorkResult[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]WorkResult[T], len(items))
	done := make(chan int, len(items))
	sem := make(chan struct{}, pool.config.MaxConcurrent)

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item WorkItem[T]) {
			defer wg.Done()
			defer func() { done <- i }()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = WorkResult[T]{ID: item.ID, Err: ctx.Err()}
				return
			}

			result, err := item.Execute(ctx)
			results[i] = WorkResult[T]{ID: item.ID, Result: result, Err: err}
		}(i, item)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	completed := 0
	failed := 0
	for i := range done {
		completed++
		if results[i].Err != nil {
			failed++
			pool.logger.Debug("Work item failed",
				zap.String("id", results[i].ID),
				zap.Error(results[i].Err))
		}
		if onProgress != nil {
			onProgress(completed, len(items))
		}
	}

	pool.logger.Debug("Worker pool finished",
		zap.Int("items", len(items)),
		zap.Int("failed", failed))
	return results
}
