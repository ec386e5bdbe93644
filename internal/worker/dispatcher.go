package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrDispatcherBusy is returned when the queue is full.
	ErrDispatcherBusy   = errors.New("dispatcher queue is full")
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

const defaultWorkerIdle = 30 * time.Second

// Config sizes a Dispatcher.
type Config struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

type job struct {
	ctx      context.Context
	run      func(context.Context) error
	err      error
	done     chan struct{}
	started  bool
	canceled bool
}

// Dispatcher runs jobs on an elastic worker pool. Jobs are grouped by key
// (a chat session) and keys are served round robin, so one busy session
// cannot starve the others.
type Dispatcher struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queues    map[string][]*job
	ready     *list.List // keys with pending jobs, next to serve at the front
	positions map[string]*list.Element
	pending   int

	queueSize   int
	min         int
	max         int
	running     int
	idleTimeout time.Duration
	closed      bool
	stop        chan struct{}
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.MinWorkers < 0 {
		cfg.MinWorkers = 0
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.MaxWorkers
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultWorkerIdle
	}
	d := &Dispatcher{
		queues:      make(map[string][]*job),
		ready:       list.New(),
		positions:   make(map[string]*list.Element),
		queueSize:   cfg.QueueSize,
		min:         cfg.MinWorkers,
		max:         cfg.MaxWorkers,
		idleTimeout: cfg.IdleTimeout,
		stop:        make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)

	// warm up
	d.mu.Lock()
	for i := 0; i < d.min; i++ {
		d.spawnLocked()
	}
	d.mu.Unlock()
	go d.purgeStaleWorkers()
	return d
}

// Do queues run under key and waits for it to finish. If ctx ends before the
// job starts the job is dropped; once started, Do waits for run to return.
func (d *Dispatcher) Do(ctx context.Context, key string, run func(context.Context) error) error {
	j := &job{ctx: ctx, run: run, done: make(chan struct{})}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	if d.pending >= d.queueSize {
		d.mu.Unlock()
		return ErrDispatcherBusy
	}
	d.queues[key] = append(d.queues[key], j)
	if _, ok := d.positions[key]; !ok {
		d.positions[key] = d.ready.PushBack(key)
	}
	d.pending++
	if d.running < d.max {
		d.spawnLocked()
	}
	d.mu.Unlock()
	d.cond.Signal()

	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
	}

	d.mu.Lock()
	if !j.started {
		j.canceled = true
		d.mu.Unlock()
		return ctx.Err()
	}
	d.mu.Unlock()
	<-j.done
	return j.err
}

// Pending returns the number of queued jobs not yet picked up by a worker.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Workers returns the number of live workers.
func (d *Dispatcher) Workers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Close stops accepting jobs. Queued jobs are still run.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.stop)
	d.mu.Unlock()
	d.cond.Broadcast()
}

// spawnLocked starts one worker unless the pool is at capacity. d.mu must be held.
func (d *Dispatcher) spawnLocked() {
	if d.running >= d.max {
		return
	}
	d.running++
	go d.work()
}

func (d *Dispatcher) work() {
	lastActive := time.Now()
	d.mu.Lock()
	for {
		j := d.nextLocked()
		if j == nil {
			if d.closed || (d.running > d.min && time.Since(lastActive) >= d.idleTimeout) {
				d.running--
				d.mu.Unlock()
				return
			}
			d.cond.Wait()
			continue
		}
		j.started = true
		d.mu.Unlock()

		j.err = j.run(j.ctx)
		close(j.done)
		lastActive = time.Now()

		d.mu.Lock()
	}
}

// nextLocked pops the next job of the key at the front of the ready list.
func (d *Dispatcher) nextLocked() *job {
	for elem := d.ready.Front(); elem != nil; elem = d.ready.Front() {
		key := elem.Value.(string)
		q := d.queues[key]
		j := q[0]
		q = q[1:]
		d.pending--
		if len(q) == 0 {
			d.ready.Remove(elem)
			delete(d.positions, key)
			delete(d.queues, key)
		} else {
			d.queues[key] = q
			d.ready.MoveToBack(elem)
		}
		if j.canceled {
			continue
		}
		return j
	}
	return nil
}

// purgeStaleWorkers wakes idle workers periodically so the ones above
// MinWorkers can retire.
func (d *Dispatcher) purgeStaleWorkers() {
	ticker := time.NewTicker(d.idleTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.cond.Broadcast()
		}
	}
}
