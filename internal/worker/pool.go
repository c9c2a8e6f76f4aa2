package worker

import (
	"context"
	"errors"
	"log"
	"sync"
)

var (
	ErrQueueFull  = errors.New("worker queue is full")
	ErrPoolClosed = errors.New("worker pool is closed")
)

type JobProcessor interface {
	Process(ctx context.Context, jobID, url string) error
}

type task struct {
	jobID string
	url   string
}

// Pool runs jobs in the background.
// With workers <= 0 every job gets its own goroutine. Otherwise at most
// workers jobs run at once and up to queueSize more wait; beyond that
// Reserve rejects with ErrQueueFull.
type Pool struct {
	processor JobProcessor
	workers   int
	ctx       context.Context

	mu     sync.Mutex
	closed bool
	slots  chan struct{}
	jobCh  chan task
	quit   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func NewPool(processor JobProcessor, workers, queueSize int) *Pool {
	p := &Pool{
		processor: processor,
		workers:   workers,
		// jobs are not cancelled by callers; they run to a terminal state
		ctx:  context.Background(),
		quit: make(chan struct{}),
	}
	if workers <= 0 {
		log.Printf("worker pool started: workers=unbounded")
		return p
	}
	if queueSize < 0 {
		queueSize = 0
	}
	capacity := workers + queueSize
	p.slots = make(chan struct{}, capacity)
	p.jobCh = make(chan task, capacity)

	for i := 0; i < workers; i++ {
		go func(n int) {
			for {
				select {
				case t := <-p.jobCh:
					p.run(n, t)
					<-p.slots
				case <-p.quit:
					return
				}
			}
		}(i + 1)
	}
	log.Printf("worker pool started: workers=%d queue=%d", workers, queueSize)
	return p
}

// Reserve claims capacity for one job and returns the function that starts it.
// The returned start func must be called exactly once.
func (p *Pool) Reserve() (start func(jobID, url string), err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	if p.slots != nil {
		select {
		case p.slots <- struct{}{}:
		default:
			return nil, ErrQueueFull
		}
	}
	p.wg.Add(1)

	return func(jobID, url string) {
		t := task{jobID: jobID, url: url}
		if p.jobCh == nil {
			go p.run(0, t)
			return
		}
		p.jobCh <- t
	}, nil
}

func (p *Pool) run(n int, t task) {
	defer p.wg.Done()
	if err := p.processor.Process(p.ctx, t.jobID, t.url); err != nil {
		log.Printf("[worker-%d] process job %s error: %v", n, t.jobID, err)
	}
}

// Shutdown rejects new jobs and waits for running and queued ones to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.once.Do(func() { close(p.quit) })
		log.Println("worker pool stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
