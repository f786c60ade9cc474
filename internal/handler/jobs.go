package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/goldenwok-pos/printd/internal/enum"
	"github.com/goldenwok-pos/printd/internal/order"
)

const maxDocumentBytes = 1 << 20

// JobStore defines the database methods needed by the print-job endpoints.
// Satisfied by *database.Store; narrow interface for testability.
type JobStore interface {
	InsertPrintJob(ctx context.Context, document []byte) (uuid.UUID, error)
	GetOrderDocument(ctx context.Context, orderType, orderID string) ([]byte, error)
}

// JobHandler handles manual print-job submission. The feed listener picks
// every inserted job up through the change feed, so these endpoints never
// talk to the printer themselves.
type JobHandler struct {
	store JobStore
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(store JobStore) *JobHandler {
	return &JobHandler{store: store}
}

// RegisterRoutes registers print-job endpoints on the given Chi router.
func (h *JobHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Post("/orders/{type}/{id}/reprint", h.Reprint)
}

type createJobResponse struct {
	PrintID uuid.UUID `json:"print_id"`
}

// Create queues a raw order document for printing. The document is decoded
// up front so a malformed submission fails loudly here instead of dying
// quietly in the worker's logs.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	doc, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable request body"})
		return
	}

	if _, err := order.Decode(doc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	id, err := h.store.InsertPrintJob(r.Context(), doc)
	if err != nil {
		log.Printf("ERROR: insert print job: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, createJobResponse{PrintID: id})
}

// Reprint re-queues an order straight from its source-of-truth collection.
func (h *JobHandler) Reprint(w http.ResponseWriter, r *http.Request) {
	orderType := chi.URLParam(r, "type")
	orderID := chi.URLParam(r, "id")
	if !enum.ValidOrderType(orderType) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order type"})
		return
	}

	doc, err := h.store.GetOrderDocument(r.Context(), orderType, orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	if err != nil {
		log.Printf("ERROR: fetch order %s/%s: %v", orderType, orderID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	id, err := h.store.InsertPrintJob(r.Context(), doc)
	if err != nil {
		log.Printf("ERROR: insert reprint job: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, createJobResponse{PrintID: id})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
