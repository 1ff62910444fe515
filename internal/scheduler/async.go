package scheduler

import (
	"context"
	"sync"
)

// Done is the loop-side half of an asynchronous call. stale is true when
// the Async was Reset after the call was started; the callback must then
// only release what the call produced.
type Done func(stale bool)

type completion struct {
	epoch uint64
	done  Done
}

// #region async
// Async runs collaborator calls off the loop and hands their completions
// back to it. Work runs in its own goroutine; completions only run inside
// Drain or Settle, on the caller's goroutine.
type Async struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	epoch  uint64
	queue  []completion
	wg     sync.WaitGroup
	ready  chan struct{}
}

// NewAsync creates an Async with a fresh cancellation scope.
func NewAsync() *Async {
	ctx, cancel := context.WithCancel(context.Background())
	return &Async{ctx: ctx, cancel: cancel, ready: make(chan struct{}, 1)}
}

// Go starts work in a goroutine. The context passed to work is cancelled
// by Reset and Close. The returned Done, if non-nil, is queued for the loop.
func (a *Async) Go(work func(ctx context.Context) Done) {
	a.mu.Lock()
	ctx, epoch := a.ctx, a.epoch
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		done := work(ctx)
		if done == nil {
			return
		}
		a.mu.Lock()
		a.queue = append(a.queue, completion{epoch: epoch, done: done})
		a.mu.Unlock()
		select {
		case a.ready <- struct{}{}:
		default:
		}
	}()
}

// Ready signals that at least one completion may be waiting for Drain.
func (a *Async) Ready() <-chan struct{} { return a.ready }

// Drain runs every queued completion in arrival order and returns how
// many ran. Completions started before the last Reset run with stale=true.
func (a *Async) Drain() int {
	a.mu.Lock()
	queue, epoch := a.queue, a.epoch
	a.queue = nil
	a.mu.Unlock()

	for _, c := range queue {
		c.done(c.epoch != epoch)
	}
	return len(queue)
}

// Settle waits for in-flight work and drains, repeating while completions
// start new work. It returns ctx.Err() if ctx ends first.
func (a *Async) Settle(ctx context.Context) error {
	for {
		idle := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(idle)
		}()
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
		if a.Drain() == 0 && a.queued() == 0 {
			return nil
		}
	}
}

func (a *Async) queued() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// Reset cancels in-flight work and marks it stale. It does not wait.
func (a *Async) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancel()
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.epoch++
}

// Close cancels in-flight work, waits for it to return and releases any
// completions as stale.
func (a *Async) Close() {
	a.Reset()
	a.wg.Wait()
	a.Drain()
}

// #endregion async
