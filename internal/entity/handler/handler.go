// Package handler serves the entity tables: the JSON API under
// /api/entities and the server-rendered table pages.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"caminomanager/internal/entity"
	"caminomanager/internal/transport/http/views"
	id "caminomanager/pkg/domain"
	dErrors "caminomanager/pkg/domain-errors"
	"caminomanager/pkg/platform/httputil"
	"caminomanager/pkg/requestcontext"
)

// Service defines the entity operations used by the handlers.
type Service interface {
	Config(name string) (entity.Config, error)
	List(ctx context.Context, name string, q entity.Query) (*entity.Page, error)
	Get(ctx context.Context, name string, recordID id.RecordID) (*entity.Record, error)
	Create(ctx context.Context, name string, data map[string]any) (*entity.Record, error)
	Update(ctx context.Context, name string, recordID id.RecordID, data map[string]any) (*entity.Record, error)
	Delete(ctx context.Context, name string, recordID id.RecordID) error
}

type Handler struct {
	entities Service
	configs  []entity.Config
	views    *views.Renderer
	logger   *slog.Logger
}

// New creates a Handler serving one table page per config.
func New(entities Service, configs []entity.Config, renderer *views.Renderer, logger *slog.Logger) *Handler {
	return &Handler{
		entities: entities,
		configs:  configs,
		views:    renderer,
		logger:   logger,
	}
}

// Register mounts the API and page routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/entities", func(r chi.Router) {
		r.Get("/", h.handleListConfigs)
		r.Get("/{entity}/config", h.handleConfig)
		r.Get("/{entity}", h.handleList)
		r.Post("/{entity}", h.handleCreate)
		r.Get("/{entity}/{id}", h.handleGet)
		r.Put("/{entity}/{id}", h.handleUpdate)
		r.Delete("/{entity}/{id}", h.handleDelete)
	})

	r.Get("/", h.handleDashboard)
	for _, cfg := range h.configs {
		r.Get(cfg.Route, h.tablePage(cfg.Name))
	}
}

func (h *Handler) handleListConfigs(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entities": h.configs})
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.entities.Config(chi.URLParam(r, "entity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := h.entities.List(r.Context(), chi.URLParam(r, "entity"), parseQuery(r))
	if err != nil {
		h.writeError(w, r, err, "failed to list records")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	recordID, ok := parseRecordID(w, r)
	if !ok {
		return
	}
	rec, err := h.entities.Get(r.Context(), chi.URLParam(r, "entity"), recordID)
	if err != nil {
		h.writeError(w, r, err, "failed to load record")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if err := httputil.DecodeJSON(r, &data); err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.entities.Create(r.Context(), chi.URLParam(r, "entity"), data)
	if err != nil {
		h.writeError(w, r, err, "failed to create record")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	recordID, ok := parseRecordID(w, r)
	if !ok {
		return
	}
	var data map[string]any
	if err := httputil.DecodeJSON(r, &data); err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.entities.Update(r.Context(), chi.URLParam(r, "entity"), recordID, data)
	if err != nil {
		h.writeError(w, r, err, "failed to update record")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	recordID, ok := parseRecordID(w, r)
	if !ok {
		return
	}
	if err := h.entities.Delete(r.Context(), chi.URLParam(r, "entity"), recordID); err != nil {
		h.writeError(w, r, err, "failed to delete record")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, views.PageDashboard, views.DashboardPage{Chrome: h.chrome(r)})
}

// tablePage renders one page of the named entity's table.
func (h *Handler) tablePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := h.entities.Config(name)
		if err != nil {
			h.renderError(w, r, err)
			return
		}
		q := parseQuery(r)
		page, err := h.entities.List(r.Context(), name, q)
		if err != nil {
			h.renderError(w, r, err)
			return
		}
		if q.Sort == "" {
			q.Sort = cfg.DefaultSort
		}
		h.render(w, r, http.StatusOK, views.PageTable, views.TablePage{
			Chrome:  h.chrome(r),
			Config:  cfg,
			Columns: cfg.ListFields(),
			Page:    page,
			Query:   q,
		})
	}
}

func (h *Handler) chrome(r *http.Request) views.Chrome {
	c := views.Chrome{Entities: h.configs}
	if ident, ok := requestcontext.User(r.Context()); ok {
		c.User = &ident
	}
	return c
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	if err := h.views.Render(w, status, page, data); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to render page",
			"page", page,
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	status := httputil.StatusFor(code)
	page := views.ErrorPage{Chrome: h.chrome(r), Title: http.StatusText(status), Message: dErrors.MessageOf(err)}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "table page failed",
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		page.Message = "No se pudo cargar la página."
	}
	h.render(w, r, status, views.PageError, page)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(r.Context(), msg,
			"entity", chi.URLParam(r, "entity"),
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
	}
	httputil.WriteError(w, err)
}

// parseQuery reads page, page_size, q and sort. Malformed numbers fall back
// to the defaults.
func parseQuery(r *http.Request) entity.Query {
	v := r.URL.Query()
	page, _ := strconv.Atoi(v.Get("page"))
	size, _ := strconv.Atoi(v.Get("page_size"))
	return entity.Query{
		Page:     page,
		PageSize: size,
		Search:   v.Get("q"),
		Sort:     v.Get("sort"),
	}
}

func parseRecordID(w http.ResponseWriter, r *http.Request) (id.RecordID, bool) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid record id"))
		return id.RecordID{}, false
	}
	return recordID, true
}
