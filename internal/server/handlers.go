package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/hmo-assistant/internal/dialogue"
	"github.com/tjfontaine/hmo-assistant/internal/domain"
	"github.com/tjfontaine/hmo-assistant/internal/retrieval"
)

const maxBodyBytes = 1 << 20

// TurnHandler processes one conversation turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req dialogue.TurnRequest) (*dialogue.TurnResponse, error)
}

// IndexSource exposes the currently served knowledge index.
type IndexSource interface {
	Load() (*retrieval.Index, error)
}

// Handlers serves the assistant API.
type Handlers struct {
	turns  TurnHandler
	index  IndexSource
	logger *slog.Logger
}

// NewHandlers creates the API handlers.
func NewHandlers(turns TurnHandler, index IndexSource, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{turns: turns, index: index, logger: logger}
}

// Mount registers the API routes on r.
func (h *Handlers) Mount(r chi.Router) {
	r.Post("/v1/turn", h.handleTurn)
	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)
}

func (h *Handlers) handleTurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req dialogue.TurnRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, domain.ErrValidation("invalid request body: "+err.Error()))
		return
	}
	AddLogField(ctx, "language", req.Language)

	resp, err := h.turns.HandleTurn(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	AddLogField(ctx, "stage", resp.Stage)
	if resp.Error != nil {
		AddLogField(ctx, "error_kind", string(resp.Error.Kind))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readiness struct {
	Status    string `json:"status"`
	Chunks    int    `json:"chunks,omitempty"`
	Dimension int    `json:"dimension,omitempty"`
	BuildID   string `json:"build_id,omitempty"`
}

func (h *Handlers) handleReady(w http.ResponseWriter, r *http.Request) {
	ix, err := h.index.Load()
	if err != nil {
		AddError(r.Context(), err)
		writeJSON(w, http.StatusServiceUnavailable, readiness{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, readiness{
		Status:    "ready",
		Chunks:    ix.Len(),
		Dimension: ix.Dimension(),
		BuildID:   ix.Meta().BuildID,
	})
}

type errorResponse struct {
	Error *domain.Error `json:"error"`
}

// writeError maps domain kinds to status codes. Anything else is a 500 with
// the detail kept out of the response body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	AddError(r.Context(), err)

	de, ok := domain.AsError(err)
	if !ok {
		status := http.StatusInternalServerError
		msg := "internal server error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
			msg = "request timed out"
		}
		writeJSON(w, status, errorResponse{Error: &domain.Error{Kind: "internal_error", Message: msg}})
		return
	}
	writeJSON(w, de.HTTPStatusCode(), errorResponse{Error: de})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
