package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/wellness-companion/internal/research"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

const maxIngestBytes = 8 << 20

// PaperIngester embeds and stores research papers.
type PaperIngester interface {
	Ingest(ctx context.Context, papers []research.Paper) (int, error)
}

// PapersHandler serves the admin research ingestion endpoint.
type PapersHandler struct {
	ingester PaperIngester
	logger   *logging.Logger
}

func NewPapersHandler(ingester PaperIngester, logger *logging.Logger) *PapersHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PapersHandler{ingester: ingester, logger: logger}
}

type ingestRequest struct {
	Papers []research.Paper `json:"papers"`
}

// Ingest handles POST /admin/papers.
func (h *PapersHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBytes)
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if len(req.Papers) == 0 {
		writeJSONStatus(w, http.StatusBadRequest, errorResponse{Error: "papers are required"})
		return
	}

	n, err := h.ingester.Ingest(r.Context(), req.Papers)
	if err != nil {
		if errors.Is(err, research.ErrInvalidPaper) {
			writeJSONStatus(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("paper ingestion failed", "error", err, "ingested", n)
		writeJSONStatus(w, http.StatusInternalServerError, map[string]any{"error": "ingestion failed", "ingested": n})
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]int{"ingested": n})
}

func writeJSONStatus(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
