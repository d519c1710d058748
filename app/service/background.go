package service

import (
	"context"
	"sync"
)

// BackgroundTasks runs fire-and-forget work such as confirmation mail and
// lets shutdown wait for what is still in flight.
type BackgroundTasks struct {
	wg sync.WaitGroup
}

func NewBackgroundTasks() *BackgroundTasks {
	return &BackgroundTasks{}
}

// Run starts task on its own goroutine. It satisfies AsyncRunner.
func (b *BackgroundTasks) Run(task func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		task()
	}()
}

// Wait blocks until every started task returns or ctx is done.
func (b *BackgroundTasks) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
