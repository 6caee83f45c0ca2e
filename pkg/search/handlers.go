package search

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/WeblateOrg/weblate-go/pkg/observability"
	"github.com/WeblateOrg/weblate-go/pkg/trans"
)

// UserSearcher runs compiled user queries. Implemented by the
// access-control store.
type UserSearcher interface {
	SearchUsers(ctx context.Context, text string, kind Kind) ([]int64, error)
}

// Handlers provides HTTP handlers for search queries
type Handlers struct {
	entities *trans.Store
	users    UserSearcher
	dialect  Dialect
	metrics  *observability.Metrics
}

// NewHandlers creates search handlers.
func NewHandlers(entities *trans.Store, users UserSearcher, dialect Dialect, metrics *observability.Metrics) *Handlers {
	return &Handlers{entities: entities, users: users, dialect: dialect, metrics: metrics}
}

// RegisterRoutes registers all search routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/search/units", h.SearchUnits).Methods("GET")
	router.HandleFunc("/search/users", h.SearchUsers).Methods("GET")
	router.HandleFunc("/search/parse", h.ParseOnly).Methods("GET")
}

func (h *Handlers) countParseError() {
	if h.metrics != nil {
		h.metrics.ParseErrorsTotal.Inc()
	}
}

// SearchUnits compiles a unit query, scoped to a project when the
// project parameter is set, and returns matching unit IDs.
func (h *Handlers) SearchUnits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	text := r.URL.Query().Get("q")

	var compileCtx *Context
	if slug := r.URL.Query().Get("project"); slug != "" {
		project, err := h.entities.GetProjectBySlug(ctx, slug)
		if err != nil {
			logrus.WithError(err).Error("Failed to resolve project")
			http.Error(w, "Failed to resolve project", http.StatusInternalServerError)
			return
		}
		if project == nil {
			http.Error(w, "Project not found", http.StatusNotFound)
			return
		}
		terms, err := h.entities.GlossaryTerms(ctx, project.ID)
		if err != nil {
			logrus.WithError(err).Error("Failed to load glossary terms")
			http.Error(w, "Failed to load glossary terms", http.StatusInternalServerError)
			return
		}
		compileCtx = &Context{Project: project, GlossaryTerms: terms}
	}

	query, err := ParseQuery(text, KindUnit, compileCtx)
	if err != nil {
		if IsQueryError(err) {
			h.countParseError()
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logrus.WithError(err).Error("Query compilation failed")
		http.Error(w, "Query compilation failed", http.StatusInternalServerError)
		return
	}

	where, args := ToSQL(query, h.dialect)
	ids, err := h.entities.SearchUnits(ctx, where, args)
	if err != nil {
		logrus.WithError(err).Error("Unit search failed")
		http.Error(w, "Unit search failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"unit_ids": ids, "count": len(ids)})
}

// SearchUsers compiles a user query and returns matching user IDs. The
// superuser parameter unlocks the privileged field table.
func (h *Handlers) SearchUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	text := r.URL.Query().Get("q")
	kind := KindUser
	if r.URL.Query().Get("superuser") == "1" {
		kind = KindSuperuser
	}

	ids, err := h.users.SearchUsers(ctx, text, kind)
	if err != nil {
		if IsQueryError(err) {
			h.countParseError()
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logrus.WithError(err).Error("User search failed")
		http.Error(w, "User search failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"user_ids": ids, "count": len(ids)})
}

// ParseOnly validates a query and echoes its canonical rendering
// without running it.
func (h *Handlers) ParseOnly(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("q")
	kind := Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = KindUnit
	}

	query, err := ParseQuery(text, kind, nil)
	if err != nil {
		if IsQueryError(err) {
			h.countParseError()
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logrus.WithError(err).Error("Query parse failed")
		http.Error(w, "Query parse failed", http.StatusInternalServerError)
		return
	}
	rendered := ""
	if query != nil {
		rendered = query.String()
	}
	writeJSON(w, map[string]string{"query": rendered})
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Error("Failed to encode response")
	}
}
