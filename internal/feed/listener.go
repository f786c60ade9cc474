package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/goldenwok-pos/printd/internal/database"
	"github.com/goldenwok-pos/printd/internal/order"
)

const channel = "print_jobs"

// Queue receives decoded jobs. Satisfied by *dispatch.Queue.
type Queue interface {
	Enqueue(o *order.Order)
}

// Store reads the durable queue. Satisfied by *database.Store.
type Store interface {
	ListPendingPrintJobs(ctx context.Context) ([]database.PrintJob, error)
	GetPrintJob(ctx context.Context, id uuid.UUID) ([]byte, error)
}

// Listener subscribes to the durable print queue's change feed: a dedicated
// connection LISTENing on the print_jobs notify channel. On every
// (re)connect the existing backlog is replayed before waiting for
// notifications, so nothing inserted while disconnected is lost. Any
// subscription error drops the connection and schedules one reconnect
// after a fixed delay; the loop retries indefinitely for the lifetime of
// the service.
type Listener struct {
	url        string
	retryDelay time.Duration
	store      Store
	queue      Queue
}

// New creates a Listener that feeds the given queue.
func New(databaseURL string, retryDelay time.Duration, store Store, queue Queue) *Listener {
	return &Listener{
		url:        databaseURL,
		retryDelay: retryDelay,
		store:      store,
		queue:      queue,
	}
}

// Run blocks until ctx is cancelled, maintaining the subscription.
func (l *Listener) Run(ctx context.Context) {
	for {
		if err := l.listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("feed: subscription dropped: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.retryDelay):
		}
	}
}

// listen holds one subscription session: connect, LISTEN, replay backlog,
// then block on notifications until something breaks. The dedicated
// connection exists only to wait on the notify channel; row reads go
// through the store's pool.
func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.url)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}

	if err := l.replayBacklog(ctx); err != nil {
		return err
	}
	log.Printf("feed: listening on %s", channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		id, err := uuid.Parse(n.Payload)
		if err != nil {
			log.Printf("feed: ignoring notification with bad payload %q", n.Payload)
			continue
		}

		doc, err := l.store.GetPrintJob(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			// Raced with a delete; the job already completed.
			continue
		}
		if err != nil {
			return fmt.Errorf("fetch job %s: %w", id, err)
		}
		l.dispatch(id, doc)
	}
}

func (l *Listener) replayBacklog(ctx context.Context) error {
	backlog, err := l.store.ListPendingPrintJobs(ctx)
	if err != nil {
		return fmt.Errorf("backlog: %w", err)
	}
	for _, j := range backlog {
		l.dispatch(j.ID, j.Document)
	}
	if len(backlog) > 0 {
		log.Printf("feed: replayed %d queued job(s)", len(backlog))
	}
	return nil
}

// dispatch decodes one queue entry and hands it to the dispatch queue. A
// document that will not decode is logged and left behind; a bad row must
// never take the subscription down with it.
func (l *Listener) dispatch(id uuid.UUID, doc []byte) {
	o, err := order.Decode(doc)
	if err != nil {
		log.Printf("feed: discarding job %s: %v", id, err)
		return
	}
	o.PrintID = id
	l.queue.Enqueue(o)
}
