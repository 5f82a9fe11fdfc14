package driver

import (
	"context"
	"runtime/debug"
	"sync/atomic"

	"github.com/golang/glog"
	"github.com/vs-ude/fyrbuild/internal/incremental"
	"github.com/vs-ude/fyrbuild/internal/mono"
	"golang.org/x/sync/semaphore"
)

// unitResult is what compiling or reusing a unit yields.
type unitResult struct {
	modules     []*CompiledModule
	reuse       incremental.Reuse
	fingerprint mono.Fingerprint
	// previous is the work product a reused unit was copied from.
	previous *incremental.WorkProduct
	// saved maps work product file kinds to the temporary files of a fresh unit.
	saved map[string]string
	err   error
}

// ongoingModule is the handle of a unit that is compiled or reused.
type ongoingModule interface {
	wait() *unitResult
}

type syncModule struct {
	result *unitResult
}

func (m *syncModule) wait() *unitResult {
	return m.result
}

type asyncModule struct {
	done       chan struct{}
	result     *unitResult
	panicValue interface{}
	stack      []byte
}

// wait re-raises a panic of the worker on the calling goroutine.
func (m *asyncModule) wait() *unitResult {
	<-m.done
	if m.panicValue != nil {
		glog.Errorf("codegen worker panicked: %v\n%s", m.panicValue, m.stack)
		panic(m.panicValue)
	}
	return m.result
}

// ConcurrencyLimiter bounds the number of units compiled at the same time.
type ConcurrencyLimiter struct {
	sem    *semaphore.Weighted
	limit  int64
	active int64
	peak   int64
}

// NewConcurrencyLimiter ...
func NewConcurrencyLimiter(limit int) *ConcurrencyLimiter {
	if limit < 1 {
		limit = 1
	}
	return &ConcurrencyLimiter{sem: semaphore.NewWeighted(int64(limit)), limit: int64(limit)}
}

// Acquire blocks until a permit is available or the context is done.
func (l *ConcurrencyLimiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	active := atomic.AddInt64(&l.active, 1)
	for {
		peak := atomic.LoadInt64(&l.peak)
		if active <= peak || atomic.CompareAndSwapInt64(&l.peak, peak, active) {
			break
		}
	}
	return nil
}

// JobAlreadyDone returns the permit of a finished job.
func (l *ConcurrencyLimiter) JobAlreadyDone() {
	atomic.AddInt64(&l.active, -1)
	l.sem.Release(1)
}

// Peak returns the highest number of permits held at the same time.
func (l *ConcurrencyLimiter) Peak() int {
	return int(atomic.LoadInt64(&l.peak))
}

// Limit ...
func (l *ConcurrencyLimiter) Limit() int {
	return int(l.limit)
}

// spawn acquires a permit and runs the job inline or on a new goroutine.
// The permit is released as soon as the job has produced its result.
func (l *ConcurrencyLimiter) spawn(ctx context.Context, inline bool, job func() *unitResult) (ongoingModule, error) {
	if err := l.Acquire(ctx); err != nil {
		return nil, err
	}
	if inline {
		defer l.JobAlreadyDone()
		return &syncModule{result: job()}, nil
	}
	m := &asyncModule{done: make(chan struct{})}
	go func() {
		defer close(m.done)
		defer l.JobAlreadyDone()
		defer func() {
			if r := recover(); r != nil {
				m.panicValue = r
				m.stack = debug.Stack()
			}
		}()
		m.result = job()
	}()
	return m, nil
}
