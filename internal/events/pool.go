package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrPoolClosed is returned when submitting to a stopped Pool.
var ErrPoolClosed = errors.New("worker pool closed")

// Task is one queued unit of work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool runs queued tasks on a fixed number of workers, in FIFO order.
//
// Invariant: a task error or panic is logged and never stops its worker.
type Pool struct {
	size   int
	queue  chan Task
	logger *zap.Logger
	tracer trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewPool creates a Pool with size workers and a queue of capacity tasks.
//
// Precondition: size >= 1; capacity >= 0; logger must be non-nil.
func NewPool(size, capacity int, logger *zap.Logger, opts ...Option) *Pool {
	if size < 1 {
		panic("events.NewPool: size must be >= 1")
	}
	o := collect(opts)
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		size:   size,
		queue:  make(chan Task, capacity),
		logger: logger,
		tracer: o.tracerProvider.Tracer(instrumentation),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit queues a task, blocking while the queue is full.
//
// Postcondition: Returns ErrPoolClosed after Stop, or ctx.Err() if ctx ends first.
func (p *Pool) Submit(ctx context.Context, name string, run func(ctx context.Context) error) error {
	if p.ctx.Err() != nil {
		return ErrPoolClosed
	}
	select {
	case p.queue <- Task{Name: name, Run: run}:
		return nil
	case <-p.ctx.Done():
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the workers and blocks until Stop.
func (p *Pool) Start() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("worker pool already started")
	}
	p.started = true
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	p.mu.Unlock()

	<-p.ctx.Done()
	p.wg.Wait()
	return nil
}

// Stop cancels running tasks, waits for the workers, and drops whatever is still queued.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	if n := len(p.queue); n > 0 {
		p.logger.Warn("worker pool stopped with queued tasks", zap.Int("dropped", n))
	}
}

func (p *Pool) work(worker int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.queue:
			p.run(worker, task)
		}
	}
}

func (p *Pool) run(worker int, task Task) {
	ctx, span := p.tracer.Start(p.ctx, "worker."+task.Name,
		trace.WithAttributes(attribute.Int("worker", worker)),
	)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			span.SetStatus(codes.Error, "panic")
			p.logger.Error("task panicked",
				zap.String("task", task.Name),
				zap.Int("worker", worker),
				zap.Any("panic", r),
			)
		}
	}()
	if err := task.Run(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("task failed",
			zap.String("task", task.Name),
			zap.Int("worker", worker),
			zap.Error(err),
		)
	}
}
