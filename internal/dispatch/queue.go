package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"faillog/internal/logger"
)

// ErrQueueFull is returned by Submit when every slot is taken.
var ErrQueueFull = errors.New("dispatch: task queue full")

// ErrQueueClosed is returned by Submit after Run has returned.
var ErrQueueClosed = errors.New("dispatch: task queue closed")

// Task is one side effect executed off the event loop.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Queue 是有界任务队列：事件循环只投递，不等待执行结果。
type Queue struct {
	tasks   chan Task
	workers int

	mu     sync.RWMutex
	closed bool

	done    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// QueueStats is a point-in-time view of the queue counters.
type QueueStats struct {
	Pending int   `json:"pending"`
	Done    int64 `json:"done"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

func NewQueue(workers, size int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 1
	}
	return &Queue{tasks: make(chan Task, size), workers: workers}
}

// Submit enqueues t without blocking.
func (q *Queue) Submit(t Task) error {
	if t.Run == nil {
		return fmt.Errorf("dispatch: task %q has no body", t.Name)
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- t:
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case t := <-q.tasks:
					q.execute(gctx, t)
				}
			}
		})
	}
	err := g.Wait()
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return err
}

func (q *Queue) execute(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			logger.Errorf("[dispatch] task %s panic: %v\n%s", t.Name, r, debug.Stack())
		}
	}()
	if err := t.Run(ctx); err != nil {
		q.failed.Add(1)
		if !errors.Is(err, context.Canceled) {
			logger.Tracef(3, "[dispatch] task %s failed: %v", t.Name, err)
		}
		return
	}
	q.done.Add(1)
}

func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Pending: len(q.tasks),
		Done:    q.done.Load(),
		Failed:  q.failed.Load(),
		Dropped: q.dropped.Load(),
	}
}
