package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/goldenwok-pos/printd/internal/enum"
)

// ErrUnknownOrderType is returned when a printed-flag update targets an
// order type with no backing collection.
var ErrUnknownOrderType = errors.New("unknown order type")

// PrintJob is one row of the durable queue collection.
type PrintJob struct {
	ID       uuid.UUID
	Document []byte
}

// Store wraps all database access: the print_jobs durable queue and the two
// source-of-truth order collections.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store on the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// InsertPrintJob appends an order document to the durable queue. The insert
// trigger notifies the feed listener.
func (s *Store) InsertPrintJob(ctx context.Context, document []byte) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO print_jobs (document) VALUES ($1) RETURNING id`,
		document,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert print job: %w", err)
	}
	return id, nil
}

// GetPrintJob fetches one queue entry's document. Returns pgx.ErrNoRows if
// the entry is gone (e.g. completed while the notification was in flight).
func (s *Store) GetPrintJob(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT document FROM print_jobs WHERE id = $1`, id,
	).Scan(&doc)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListPendingPrintJobs returns the whole durable queue, oldest first. The
// listener replays it after every (re)connect so jobs inserted while
// disconnected are never lost.
func (s *Store) ListPendingPrintJobs(ctx context.Context) ([]PrintJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document FROM print_jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list print jobs: %w", err)
	}
	defer rows.Close()

	var jobs []PrintJob
	for rows.Next() {
		var j PrintJob
		if err := rows.Scan(&j.ID, &j.Document); err != nil {
			return nil, fmt.Errorf("scan print job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// DeletePrintJob removes a completed queue entry. Deleting an already-gone
// entry is not an error.
func (s *Store) DeletePrintJob(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM print_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete print job: %w", err)
	}
	return nil
}

// MarkOrderPrinted flips the printed flag on the order's source-of-truth
// record, chosen by order type. Returns false with a nil error when the
// record no longer exists (historical reprints); that is the caller's cue
// to log and move on.
func (s *Store) MarkOrderPrinted(ctx context.Context, orderType, orderID string) (bool, error) {
	table, err := collectionFor(orderType)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+table+` SET printed = true WHERE id = $1`, orderID)
	if err != nil {
		return false, fmt.Errorf("mark printed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetOrderDocument reads an order's source-of-truth document, for manual
// reprints. Returns pgx.ErrNoRows when absent.
func (s *Store) GetOrderDocument(ctx context.Context, orderType, orderID string) ([]byte, error) {
	table, err := collectionFor(orderType)
	if err != nil {
		return nil, err
	}
	var doc []byte
	if err := s.pool.QueryRow(ctx,
		`SELECT document FROM `+table+` WHERE id = $1`, orderID,
	).Scan(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func collectionFor(orderType string) (string, error) {
	switch orderType {
	case enum.OrderTypeDineIn:
		return "dine_in_orders", nil
	case enum.OrderTypeTakeOut:
		return "takeout_orders", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOrderType, orderType)
}
