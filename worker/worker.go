// Package worker provides single goroutine job queues. Jobs submitted to a
// Queue run one at a time in submission order.
package worker

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

const maxWaiting = 512

// ErrShutdown is returned when submitting to a stopped queue
var ErrShutdown = errors.New("worker: queue shut down")

// Config defines queue configuration
type Config struct {
	// Name appears in logs
	Name string

	// OnPanic is called on the queue goroutine when a job panics
	OnPanic func(any)

	Logger *zap.Logger
}

// Queue is a FIFO drained by exactly one goroutine
type Queue struct {
	name    string
	onPanic func(any)
	logger  *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	mu        sync.RWMutex
	stopped   bool
	wg        sync.WaitGroup
	workCh    chan func()
	done      chan struct{}
}

// New creates a queue, call Start before submitting
func New(c Config) *Queue {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		name:    c.Name,
		onPanic: c.OnPanic,
		logger:  logger.With(zap.String("queue", c.Name)),
		workCh:  make(chan func(), maxWaiting),
		done:    make(chan struct{}),
	}
}

// Start starts the queue goroutine
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		q.wg.Add(1)
		go q.loop()
	})
}

// Submit enqueues f. It blocks while the queue is full and returns
// ErrShutdown if the queue stops in the meantime.
func (q *Queue) Submit(f func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrShutdown
	}
	select {
	case q.workCh <- f:
		return nil
	case <-q.done:
		return ErrShutdown
	}
}

// Shutdown stops accepting jobs, runs the queued ones and waits for the
// goroutine to exit
func (q *Queue) Shutdown() {
	q.stopOnce.Do(func() {
		// wakes blocked submitters so the write lock can be taken
		close(q.done)
		q.mu.Lock()
		q.stopped = true
		close(q.workCh)
		q.mu.Unlock()

		// drain here when Start was never called
		q.startOnce.Do(func() {
			for f := range q.workCh {
				q.run(f)
			}
		})
		q.wg.Wait()
	})
}

func (q *Queue) loop() {
	defer q.wg.Done()
	for f := range q.workCh {
		q.run(f)
	}
}

func (q *Queue) run(f func()) {
	defer func() {
		if p := recover(); p != nil {
			q.logger.Error("job panicked", zap.String("panic", fmt.Sprint(p)), zap.Stack("stack"))
			if q.onPanic != nil {
				q.onPanic(p)
			}
		}
	}()
	f()
}

// Len returns the number of queued jobs
func (q *Queue) Len() int {
	return len(q.workCh)
}
