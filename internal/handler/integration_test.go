//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/goldenwok-pos/printd/internal/config"
	"github.com/goldenwok-pos/printd/internal/database"
	"github.com/goldenwok-pos/printd/internal/dispatch"
	"github.com/goldenwok-pos/printd/internal/feed"
	mw "github.com/goldenwok-pos/printd/internal/middleware"
	"github.com/goldenwok-pos/printd/internal/order"
	"github.com/goldenwok-pos/printd/internal/printer"
	"github.com/goldenwok-pos/printd/internal/router"
	"github.com/goldenwok-pos/printd/internal/ticket"
	"github.com/goldenwok-pos/printd/internal/ws"
)

// recordingSurface collects the rendered text of each ticket. Flush commits
// the buffered lines as one finished ticket.
type recordingSurface struct {
	mu      sync.Mutex
	current []string
	tickets []string
}

func (r *recordingSurface) Align(printer.Alignment) error { return nil }
func (r *recordingSurface) Bold(bool) error               { return nil }
func (r *recordingSurface) Underline(bool) error          { return nil }
func (r *recordingSurface) Size(printer.TextSize) error   { return nil }
func (r *recordingSurface) Feed(int) error                { return nil }
func (r *recordingSurface) Connected() bool               { return true }
func (r *recordingSurface) Cut() error                    { return nil }

func (r *recordingSurface) Line(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = append(r.current, text)
	return nil
}

func (r *recordingSurface) LeftRight(left, right string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = append(r.current, strings.TrimSpace(left+" "+right))
	return nil
}

func (r *recordingSurface) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets = append(r.tickets, strings.Join(r.current, "\n"))
	r.current = nil
	return nil
}

func (r *recordingSurface) printed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tickets...)
}

func (r *recordingSurface) waitForTickets(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if got := r.printed(); len(got) >= n {
			return got
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d ticket(s), got %d", n, len(r.printed()))
	return nil
}

// TestIntegrationFlow exercises the full dispatch lifecycle against a real
// PostgreSQL database: HTTP submission, change-feed pickup, FIFO printing,
// printed-flag reconciliation and queue-entry cleanup.
func TestIntegrationFlow(t *testing.T) {
	ctx := context.Background()

	pgContainer, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := config.Load()
	cfg.DatabaseURL = connStr
	cfg.AuthToken = "integration-test-secret"

	store := database.New(pool)
	surface := &recordingSurface{}
	emitter := ticket.NewEmitter(cfg, order.NewFormatter(cfg))
	hub := ws.NewHub()
	// NOTE: hub.Run() goroutine leaks on test exit; Hub has no shutdown
	// mechanism. Acceptable for tests.
	go hub.Run()

	queue := dispatch.New(emitter, surface, store, hub)

	listenerCtx, stopListener := context.WithCancel(ctx)
	defer stopListener()
	go feed.New(connStr, 200*time.Millisecond, store, queue).Run(listenerCtx)

	server := httptest.NewServer(router.New(cfg, store, hub))
	defer server.Close()

	// --- 1. Seed a take-out order in its source-of-truth collection ---
	takeoutDoc := `{
		"id": "ord-100",
		"orderType": "TAKE_OUT",
		"name": "Jane",
		"phoneNumber": "3067647799",
		"readyTime": 20,
		"createdAt": "2026-08-30T17:30:00Z",
		"items": [
			{"name": "Ginger Beef", "quantity": 2, "price": "15.95", "kitchenType": "A"}
		],
		"total": "31.90"
	}`
	seedOrder(t, ctx, pool, "takeout_orders", "ord-100", takeoutDoc)

	// --- 2. Requests without the shared token are rejected ---
	resp := httpPost(t, server, "/print-jobs", takeoutDoc, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated submit: status %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	// --- 3. Queue the order through the API ---
	printID := submitJob(t, server, cfg.AuthToken, takeoutDoc)

	// --- 4. A take-out order prints two copies, kitchen copy first ---
	tickets := surface.waitForTickets(t, 2)
	if !strings.Contains(tickets[0], "TAKE OUT B") {
		t.Errorf("first ticket should be the kitchen copy:\n%s", tickets[0])
	}
	if !strings.Contains(tickets[1], "TAKE OUT A") {
		t.Errorf("second ticket should be the counter copy:\n%s", tickets[1])
	}
	if !strings.Contains(tickets[0], "Phone: 306 764-7799") {
		t.Errorf("ticket missing formatted phone:\n%s", tickets[0])
	}

	// --- 5. Printed flag set on the source record ---
	waitForPrintedFlag(t, ctx, pool, "takeout_orders", "ord-100")

	// --- 6. Queue entry removed after completion ---
	waitForJobGone(t, ctx, pool, printID)

	// --- 7. A job whose source record vanished still prints and completes ---
	ghostDoc := `{"id": "ord-ghost", "orderType": "DINE_IN", "tableNumber": "5",
		"items": [{"name": "Wonton Soup", "quantity": 1, "price": "9.50", "kitchenType": "B"}]}`
	ghostID := submitJob(t, server, cfg.AuthToken, ghostDoc)

	tickets = surface.waitForTickets(t, 3)
	if !strings.Contains(tickets[2], "Table 5") {
		t.Errorf("dine-in ticket missing table header:\n%s", tickets[2])
	}
	waitForJobGone(t, ctx, pool, ghostID)

	// --- 8. Manual reprint reads the source-of-truth document back ---
	resp = httpPost(t, server, "/print-jobs/orders/TAKE_OUT/ord-100/reprint", "", cfg.AuthToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("reprint: status %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()
	surface.waitForTickets(t, 5) // two more copies

	// --- 9. Reprinting an unknown order is a 404 ---
	resp = httpPost(t, server, "/print-jobs/orders/TAKE_OUT/no-such-order/reprint", "", cfg.AuthToken)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("reprint of missing order: status %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	t.Logf("Integration test passed: container=%s, job=%s, ghost=%s",
		pgContainer.GetContainerID(), printID, ghostID)
}

// TestIntegrationBacklogReplay verifies that jobs inserted while no listener
// is connected are picked up and printed when one connects.
func TestIntegrationBacklogReplay(t *testing.T) {
	ctx := context.Background()

	_, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := config.Load()
	store := database.New(pool)

	// Queue two jobs before any listener exists.
	doc1 := `{"id": "ord-1", "orderType": "DINE_IN", "tableNumber": "1",
		"items": [{"name": "Tea", "quantity": 1, "price": "2.00", "kitchenType": "B"}]}`
	doc2 := `{"id": "ord-2", "orderType": "DINE_IN", "tableNumber": "2",
		"items": [{"name": "Coffee", "quantity": 1, "price": "2.50", "kitchenType": "B"}]}`
	if _, err := store.InsertPrintJob(ctx, []byte(doc1)); err != nil {
		t.Fatalf("insert job 1: %v", err)
	}
	if _, err := store.InsertPrintJob(ctx, []byte(doc2)); err != nil {
		t.Fatalf("insert job 2: %v", err)
	}

	surface := &recordingSurface{}
	emitter := ticket.NewEmitter(cfg, order.NewFormatter(cfg))
	queue := dispatch.New(emitter, surface, store, nil)

	listenerCtx, stopListener := context.WithCancel(ctx)
	defer stopListener()
	go feed.New(connStr, 200*time.Millisecond, store, queue).Run(listenerCtx)

	tickets := surface.waitForTickets(t, 2)
	if !strings.Contains(tickets[0], "Table 1") || !strings.Contains(tickets[1], "Table 2") {
		t.Errorf("backlog must replay oldest first:\n--- first ---\n%s\n--- second ---\n%s",
			tickets[0], tickets[1])
	}

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		var n int
		if err := pool.QueryRow(ctx, `SELECT count(*) FROM print_jobs`).Scan(&n); err != nil {
			t.Fatalf("count print jobs: %v", err)
		}
		if n == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("queue entries not cleaned up after backlog replay")
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("printd_test"),
		tcpostgres.WithUsername("printd"),
		tcpostgres.WithPassword("printd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return pgContainer, connStr, cleanup
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	// Connect with stdlib for migrate
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// Path relative to this test file's package directory.
	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func seedOrder(t *testing.T, ctx context.Context, pool *pgxpool.Pool, table, id, doc string) {
	t.Helper()
	_, err := pool.Exec(ctx,
		`INSERT INTO `+table+` (id, document) VALUES ($1, $2)`, id, []byte(doc))
	if err != nil {
		t.Fatalf("seed %s/%s: %v", table, id, err)
	}
}

func submitJob(t *testing.T, server *httptest.Server, token, doc string) uuid.UUID {
	t.Helper()
	resp := httpPost(t, server, "/print-jobs", doc, token)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit job: status %d, want 201", resp.StatusCode)
	}
	var body struct {
		PrintID uuid.UUID `json:"print_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	return body.PrintID
}

func waitForPrintedFlag(t *testing.T, ctx context.Context, pool *pgxpool.Pool, table, id string) {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		var printed bool
		err := pool.QueryRow(ctx,
			`SELECT printed FROM `+table+` WHERE id = $1`, id).Scan(&printed)
		if err != nil {
			t.Fatalf("read printed flag for %s/%s: %v", table, id, err)
		}
		if printed {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("printed flag never set on %s/%s", table, id)
}

func waitForJobGone(t *testing.T, ctx context.Context, pool *pgxpool.Pool, id uuid.UUID) {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		var n int
		if err := pool.QueryRow(ctx,
			`SELECT count(*) FROM print_jobs WHERE id = $1`, id).Scan(&n); err != nil {
			t.Fatalf("count job %s: %v", id, err)
		}
		if n == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("queue entry %s never deleted", id)
}

// --- HTTP helpers ---

func httpPost(t *testing.T, server *httptest.Server, path, body, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("POST", server.URL+path, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(mw.TokenHeader, token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}
