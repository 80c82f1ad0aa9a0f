package detkit

import (
	"sync"
)

// Pool is a fixed set of worker slots used to bound the number of goroutines
// working on independent items, such as the images of a batch or the classes
// of a multi-class suppression
type Pool struct {
	// pool of free slot numbers
	slots chan int
	// size of pool
	size int
	// mu guards closed so Return never sends on a closed channel
	mu     sync.Mutex
	closed bool
}

// NewPool creates a new worker pool with size slots.  A size below one is
// treated as one
func NewPool(size int) *Pool {

	if size < 1 {
		size = 1
	}

	p := &Pool{
		slots: make(chan int, size),
		size:  size,
	}

	for i := 0; i < size; i++ {
		// attach to pool
		p.Return(i)
	}

	return p
}

// Size returns the number of slots in the pool
func (p *Pool) Size() int {
	return p.size
}

// Get takes a free slot from the pool, blocking until one is available.  It
// returns -1 once the pool is closed and no free slot remains
func (p *Pool) Get() int {

	slot, ok := <-p.slots

	if !ok {
		return -1
	}

	return slot
}

// Return a slot to the pool.  Slots returned to a full or closed pool are
// dropped
func (p *Pool) Return(slot int) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	select {
	case p.slots <- slot:
	default:
	}
}

// Run calls fn for every task in [0,n), with at most Size tasks running at
// once, and waits for them all to finish.  The slot passed to fn is unique
// among the tasks running at the same time so it can index per worker
// scratch space.  On a closed pool the remaining tasks run in order on the
// calling goroutine with slot 0
func (p *Pool) Run(n int, fn func(slot, task int)) {

	if p.size == 1 {
		for i := 0; i < n; i++ {
			fn(0, i)
		}
		return
	}

	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		slot := p.Get()

		if slot < 0 {
			wg.Wait()

			for ; i < n; i++ {
				fn(0, i)
			}
			return
		}

		wg.Add(1)

		go func(slot, task int) {
			defer wg.Done()
			defer p.Return(slot)
			fn(slot, task)
		}(slot, i)
	}

	wg.Wait()
}

// Close the pool.  Free slots already queued can still be taken by Get, after
// which Get returns -1.  Closing twice is a no-op
func (p *Pool) Close() {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.slots)
}

// ForEach calls fn for every task in [0,n) using up to workers goroutines.
// With one worker or less the tasks run in order on the calling goroutine
func ForEach(n, workers int, fn func(task int)) {

	if workers <= 1 || n < 2 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	p := NewPool(min(workers, n))
	defer p.Close()

	p.Run(n, func(_, task int) {
		fn(task)
	})
}
