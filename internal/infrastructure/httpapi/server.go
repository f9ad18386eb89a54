package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"TrustRegistry/internal/domain"
	"TrustRegistry/internal/usecase"
)

// TreeBuilder produces the agency tree view.
type TreeBuilder interface {
	BuildAgencyTree(ctx context.Context, includeRating bool) (usecase.AgencyNode, error)
}

// Server exposes the read-only view of the registry.
type Server struct {
	tree   TreeBuilder
	logger *slog.Logger
}

// New builds the HTTP adapter.
func New(tree TreeBuilder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{tree: tree, logger: logger}
}

// Routes returns a chi.Router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.getHealthz)
	r.Get("/api/agencies/tree", s.getAgencyTree)
	return r
}

func (s *Server) getHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getAgencyTree(w http.ResponseWriter, r *http.Request) {
	includeRating := false
	if raw := r.URL.Query().Get("includeRating"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "includeRating must be a boolean"})
			return
		}
		includeRating = parsed
	}

	node, err := s.tree.BuildAgencyTree(r.Context(), includeRating)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "registry is empty"})
		return
	case err != nil:
		s.logger.Error("build agency tree", "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
