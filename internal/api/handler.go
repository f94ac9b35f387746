// internal/api/handler.go
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"repo-browser/internal/apperrors"
	"repo-browser/internal/github"
	"repo-browser/internal/model"
	"repo-browser/internal/store"
	"repo-browser/internal/syncer"
)

const (
	defaultPage    = 1
	defaultPerPage = 30
	maxPerPage     = github.MaxPageSize

	// Wire format for timestamps, matching what the table UI renders.
	updatedAtLayout = "2006-01-02 15:04:05"
)

// Reader is the read-only slice of the store the API needs.
type Reader interface {
	CountRepositories(ctx context.Context) (int, error)
	ListRepositories(ctx context.Context, page, perPage int) ([]model.Repository, error)
	ReadSyncState(ctx context.Context) (store.SyncState, error)
}

// Remote is the slice of the GitHub client used for the live-proxy path.
type Remote interface {
	ListPage(ctx context.Context, page, perPage int) (*github.Page, error)
}

// SyncRunner triggers a background sync sweep.
type SyncRunner interface {
	Run(ctx context.Context) <-chan syncer.Result
}

// Handler is the container for API dependencies. It routes listing requests
// to the local store once a sync has completed and proxies them live to
// GitHub before that.
type Handler struct {
	store  Reader
	remote Remote
	syncer SyncRunner
	logger *slog.Logger
	totals totalsCache
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(st Reader, remote Remote, sync SyncRunner, logger *slog.Logger) http.Handler {
	h := NewHandler(st, remote, sync, logger)

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(jsonContent)

	// A sync sweep can run for minutes; only the listing path gets the
	// request timeout.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Get("/api/github/repos", h.getRepos)
	})
	r.Post("/api/repos/sync", h.syncRepos)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, "404 Not Found!")
	})
	// Unsupported methods on known paths are treated as unknown requests.
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, "404 Not Found!")
	})

	return r
}

// NewHandler builds the Handler without the router, for tests that call the
// endpoint methods directly.
func NewHandler(st Reader, remote Remote, sync SyncRunner, logger *slog.Logger) *Handler {
	return &Handler{
		store:  st,
		remote: remote,
		syncer: sync,
		logger: logger,
	}
}

// jsonContent marks every response as JSON and allows any origin, as the
// browser client is served from a different port.
func jsonContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

// getRepos handles the repository listing request.
// GET /api/github/repos?page=N&per_page=M
func (h *Handler) getRepos(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", defaultPage)
	if err != nil || page < 1 {
		respondWithError(w, http.StatusBadRequest, "Invalid 'page' parameter. Must be an integer >= 1.")
		return
	}
	perPage, err := queryInt(r, "per_page", defaultPerPage)
	if err != nil || perPage < 1 || perPage > maxPerPage {
		respondWithError(w, http.StatusBadRequest, "Invalid 'per_page' parameter. Must be an integer between 1 and 100.")
		return
	}

	state, err := h.store.ReadSyncState(r.Context())
	if err != nil {
		h.logger.Error("Failed to read sync state", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// Serve locally only once a sync has completed and none is running;
	// before the first sweep finishes the local table is empty or partial,
	// so the request proxies live to GitHub.
	if state == store.StateIdle {
		h.getLocalRepos(w, r, page, perPage)
		return
	}
	h.getLiveRepos(w, r, page, perPage)
}

// getLocalRepos serves a listing page from the local store.
func (h *Handler) getLocalRepos(w http.ResponseWriter, r *http.Request, page, perPage int) {
	totalItems, err := h.store.CountRepositories(r.Context())
	if err != nil {
		h.logger.Error("Failed to count repositories", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	repos, err := h.store.ListRepositories(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error("Failed to list repositories", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	totalPages := 0
	if totalItems > 0 {
		totalPages = (totalItems + perPage - 1) / perPage
	}

	out := make([]repoJSON, 0, len(repos))
	for _, repo := range repos {
		out = append(out, repoJSON{
			ID:        strconv.FormatInt(repo.ID, 10),
			Name:      repo.Name,
			Language:  repo.Language,
			StarCount: repo.StarCount,
			UpdatedAt: repo.UpdatedAt.UTC().Format(updatedAtLayout),
		})
	}

	respondWithJSON(w, http.StatusOK, pageJSON{
		TotalItems: totalItems,
		TotalPages: totalPages,
		Repos:      out,
	})
}

// getLiveRepos proxies a listing page straight to GitHub.
func (h *Handler) getLiveRepos(w http.ResponseWriter, r *http.Request, page, perPage int) {
	p, err := h.remote.ListPage(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error("Failed to fetch repositories from GitHub", "page", page, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	totalItems, totalPages := h.liveTotals(r.Context(), page, perPage, p)

	out := make([]repoJSON, 0, len(p.Repos))
	for i, repo := range p.Repos {
		out = append(out, repoJSON{
			ID:        strconv.Itoa(i),
			Name:      repo.Name,
			Language:  repo.Language,
			StarCount: repo.StarCount,
			UpdatedAt: repo.UpdatedAt.UTC().Format(updatedAtLayout),
		})
	}

	respondWithJSON(w, http.StatusOK, pageJSON{
		TotalItems: totalItems,
		TotalPages: totalPages,
		Repos:      out,
	})
}

// syncRepos handles the sync trigger request. The sweep runs on its own
// goroutine; the response reports its outcome, or "sync in progress" when a
// sweep already holds the flag.
// POST /api/repos/sync
func (h *Handler) syncRepos(w http.ResponseWriter, r *http.Request) {
	results := h.syncer.Run(r.Context())

	select {
	case res := <-results:
		switch {
		case errors.Is(res.Err, apperrors.ErrSyncInProgress):
			respondWithJSON(w, http.StatusOK, statusJSON{Status: "sync in progress"})
		case res.Err != nil:
			respondWithJSON(w, http.StatusOK, statusJSON{Status: "aborted"})
		default:
			h.totals.Invalidate()
			respondWithJSON(w, http.StatusOK, statusJSON{Status: "completed"})
		}
	case <-r.Context().Done():
		// Client went away; the sweep keeps running in the background.
		h.logger.Info("Sync requester disconnected before completion")
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
