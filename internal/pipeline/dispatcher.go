package pipeline

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/sirupsen/logrus"
)

// task runs on a lane worker. The ctx it receives is the submitter's ctx
// tagged with the lane id, so nested Submit calls can tell an in-handler
// publish from an external one.
type task func(ctx context.Context)

type laneMarker struct{}

func laneFromContext(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(laneMarker{}).(int)
	return id, ok
}

// lane is one ordered execution stream. deferred holds work a worker
// scheduled for its own lane; the worker drains it after each task, so a
// handler publishing downstream never blocks on the queue it is serving.
type lane struct {
	id int
	ch chan func()

	mu       sync.Mutex
	deferred []func()
}

func (ln *lane) push(fn func()) {
	ln.mu.Lock()
	ln.deferred = append(ln.deferred, fn)
	ln.mu.Unlock()
}

func (ln *lane) drainDeferred() {
	for {
		ln.mu.Lock()
		if len(ln.deferred) == 0 {
			ln.mu.Unlock()
			return
		}
		fn := ln.deferred[0]
		ln.deferred = ln.deferred[1:]
		ln.mu.Unlock()
		fn()
	}
}

// Dispatcher fans work out over a fixed pool of workers, hashing each
// task's key to a lane so tasks with the same key never run concurrently
// or out of submission order. Queues are bounded; external Submit calls
// block when a lane is full, providing backpressure to the publisher.
// Workers themselves never block on Submit: own-lane publishes go to the
// lane's deferred buffer, cross-lane publishes detach when the target
// queue is full.
type Dispatcher struct {
	lanes []*lane
	wg    sync.WaitGroup
	log   *logrus.Logger

	closeOnce sync.Once
}

func NewDispatcher(workers, queueSize int, log *logrus.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	d := &Dispatcher{
		lanes: make([]*lane, workers),
		log:   log,
	}
	for i := range d.lanes {
		d.lanes[i] = &lane{id: i, ch: make(chan func(), queueSize)}
		d.wg.Add(1)
		go d.worker(d.lanes[i])
	}
	return d
}

func (d *Dispatcher) worker(ln *lane) {
	defer d.wg.Done()
	for fn := range ln.ch {
		fn()
		ln.drainDeferred()
	}
	ln.drainDeferred()
}

func (d *Dispatcher) laneFor(key string) *lane {
	h := fnv.New32a()
	h.Write([]byte(key))
	return d.lanes[int(h.Sum32())%len(d.lanes)]
}

// Submit enqueues fn on the lane for key. External callers block on
// backpressure until ctx is canceled; a worker submitting to its own lane
// defers the task past the one it is running, and a worker submitting to
// a full foreign lane hands the send off so two workers can never block
// on each other's queues.
func (d *Dispatcher) Submit(ctx context.Context, key string, fn task) error {
	ln := d.laneFor(key)
	wrapped := func() { fn(context.WithValue(ctx, laneMarker{}, ln.id)) }

	if id, ok := laneFromContext(ctx); ok {
		if id == ln.id {
			ln.push(wrapped)
			return nil
		}
		select {
		case ln.ch <- wrapped:
		default:
			go func() {
				select {
				case ln.ch <- wrapped:
				case <-ctx.Done():
				}
			}()
		}
		return nil
	}

	select {
	case ln.ch <- wrapped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for queued tasks to drain.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		for _, ln := range d.lanes {
			close(ln.ch)
		}
	})
	d.wg.Wait()
}
