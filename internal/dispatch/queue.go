package dispatch

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goldenwok-pos/printd/internal/enum"
	"github.com/goldenwok-pos/printd/internal/order"
	"github.com/goldenwok-pos/printd/internal/printer"
)

// How long a single persisted-state update or queue-entry delete may take
// before it is abandoned and logged.
const storeOpTimeout = 10 * time.Second

// Emitter prints one physical ticket for an order to one destination.
// Satisfied by *ticket.Emitter; narrow interface for testability.
type Emitter interface {
	Emit(s printer.Surface, o *order.Order, dest string) error
}

// Store defines the persistence methods the job-processing protocol needs.
// Satisfied by *database.Store; narrow interface for testability.
type Store interface {
	MarkOrderPrinted(ctx context.Context, orderType, orderID string) (bool, error)
	DeletePrintJob(ctx context.Context, id uuid.UUID) error
}

// Notifier receives job lifecycle events. Satisfied by *ws.Hub.
type Notifier interface {
	PublishJob(eventType string, o *order.Order)
}

// Queue is the in-process, strictly-ordered, single-worker print queue.
// Jobs are buffered FIFO; a busy flag admits exactly one drain activation
// at a time, so no two jobs are ever mid-print simultaneously. A job runs
// to completion once picked up: success and failure are both terminal, and
// neither ever escapes the worker.
type Queue struct {
	emitter  Emitter
	surface  printer.Surface
	store    Store
	notifier Notifier

	mu      sync.Mutex
	buf     []*order.Order
	pending map[uuid.UUID]bool // printIds buffered or in flight
	busy    bool
}

// New creates a Queue. notifier may be nil.
func New(emitter Emitter, surface printer.Surface, store Store, notifier Notifier) *Queue {
	return &Queue{
		emitter:  emitter,
		surface:  surface,
		store:    store,
		notifier: notifier,
		pending:  make(map[uuid.UUID]bool),
	}
}

// Enqueue appends a job to the buffer and triggers a drain. It never
// blocks on printing: the feed listener must stay responsive while a
// ticket is on the press. A job whose printId is already buffered or in
// flight is dropped, because the listener replays the durable queue after
// every reconnect and a replayed entry must not print twice.
func (q *Queue) Enqueue(o *order.Order) {
	q.mu.Lock()
	if o.PrintID != uuid.Nil {
		if q.pending[o.PrintID] {
			q.mu.Unlock()
			log.Printf("dispatch: job %s already queued, skipping", o.PrintID)
			return
		}
		q.pending[o.PrintID] = true
	}
	q.buf = append(q.buf, o)
	q.mu.Unlock()

	q.notify(enum.JobEventQueued, o)
	go q.Drain()
}

// Drain processes buffered jobs one at a time until the buffer is empty.
// If a drain is already running, or there is nothing to do, it returns
// immediately; the running drain's loop will pick up whatever was appended
// meanwhile, so every enqueued job gets exactly one processing attempt.
func (q *Queue) Drain() {
	q.mu.Lock()
	if q.busy || len(q.buf) == 0 {
		q.mu.Unlock()
		return
	}
	q.busy = true

	for len(q.buf) > 0 {
		job := q.buf[0]
		q.buf = q.buf[1:]
		q.mu.Unlock()

		q.process(job)

		q.mu.Lock()
		if job.PrintID != uuid.Nil {
			delete(q.pending, job.PrintID)
		}
	}

	q.busy = false
	q.mu.Unlock()
}

// Pending reports how many jobs are buffered or in flight.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.buf)
	if q.busy {
		n++
	}
	return n
}

// process runs the job-processing protocol for one dequeued job. Nothing
// it does may crash the worker loop: print failures are terminal for the
// job only, and persistence failures are logged and swallowed. The
// physical print, the side effect that matters, already happened or
// definitively failed by the time they run.
func (q *Queue) process(o *order.Order) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch: panic processing order %s: %v", o.ID, r)
		}
	}()

	q.notify(enum.JobEventPrinting, o)

	var printErr error
	if o.OrderType == enum.OrderTypeTakeOut {
		// Two physical copies, kitchen copy strictly before counter copy.
		printErr = q.emitter.Emit(q.surface, o, enum.DestinationB)
		if printErr == nil {
			printErr = q.emitter.Emit(q.surface, o, enum.DestinationA)
		}
	} else {
		printErr = q.emitter.Emit(q.surface, o, enum.DestinationDefault)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	found, err := q.store.MarkOrderPrinted(ctx, o.OrderType, o.ID)
	switch {
	case err != nil:
		log.Printf("dispatch: mark printed failed for order %s: %v", o.ID, err)
	case !found:
		log.Printf("dispatch: order %s no longer in %s collection, skipping printed flag", o.ID, o.OrderType)
	}

	if o.PrintID != uuid.Nil {
		if err := q.store.DeletePrintJob(ctx, o.PrintID); err != nil {
			log.Printf("dispatch: delete queue entry %s failed: %v", o.PrintID, err)
		}
	}

	if printErr != nil {
		log.Printf("dispatch: print failed for order %s: %v", o.ID, printErr)
		q.notify(enum.JobEventFailed, o)
		return
	}
	log.Printf("dispatch: printed order %s (%s)", o.ID, o.OrderType)
	q.notify(enum.JobEventPrinted, o)
}

func (q *Queue) notify(eventType string, o *order.Order) {
	if q.notifier != nil {
		q.notifier.PublishJob(eventType, o)
	}
}
