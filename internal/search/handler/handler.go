// Package handler exposes searches over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"recon/internal/search/models"
	"recon/internal/search/orchestrator"
	dErrors "recon/pkg/domain-errors"
	"recon/pkg/platform/httputil"
	"recon/pkg/requestcontext"
)

// Service is the search application layer.
type Service interface {
	CreateAndDispatch(ctx context.Context, searchType models.SearchType, query string) (*models.Search, error)
	Execute(ctx context.Context, id uuid.UUID) (*orchestrator.ExecutionSummary, error)
	Get(ctx context.Context, id uuid.UUID) (*orchestrator.SearchSummary, error)
	List(ctx context.Context, filter models.ListFilter) (*models.SearchPage, error)
	Stats(ctx context.Context) (*models.Overview, error)
	SourceStats(ctx context.Context, id uuid.UUID) (map[string]models.SourceStats, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Handler struct {
	searches Service
	logger   *slog.Logger
}

func New(searches Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{searches: searches, logger: logger}
}

// Register mounts the search routes under /searches.
func (h *Handler) Register(r chi.Router) {
	r.Route("/searches", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/stats/overview", h.handleStats)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/sources", h.handleSourceStats)
		r.Post("/{id}/execute", h.handleExecute)
		r.Delete("/{id}", h.handleDelete)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateSearchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	search, err := h.searches.CreateAndDispatch(ctx, req.Type(), req.Query)
	if err != nil {
		h.fail(ctx, w, "failed to create search", err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, CreateSearchResponse{
		Message:  "Search created and queued for execution",
		SearchID: search.ID.String(),
		Status:   search.Status,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseListFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.searches.List(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "failed to list searches", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overview, err := h.searches.Stats(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to load search stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, overview)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := searchID(w, r)
	if !ok {
		return
	}
	summary, err := h.searches.Get(ctx, id)
	if err != nil {
		h.fail(ctx, w, "failed to load search", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleSourceStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := searchID(w, r)
	if !ok {
		return
	}
	stats, err := h.searches.SourceStats(ctx, id)
	if err != nil {
		h.fail(ctx, w, "failed to load result stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"search_id": id,
		"by_source": stats,
	})
}

// handleExecute runs a pending search in the request, e.g. one whose
// background dispatch was rejected.
func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := searchID(w, r)
	if !ok {
		return
	}
	summary, err := h.searches.Execute(ctx, id)
	if err != nil {
		h.fail(ctx, w, "failed to execute search", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := searchID(w, r)
	if !ok {
		return
	}
	if err := h.searches.Delete(ctx, id); err != nil {
		h.fail(ctx, w, "failed to delete search", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func searchID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid search id"))
		return uuid.Nil, false
	}
	return id, true
}

// fail logs server-side failures at error level and client errors at warn.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
