// Package httpapi binds the engagement service to HTTP.
//
// User-facing routes identify the caller from a header set by the fronting
// identity proxy. The update push route authenticates with a project bearer
// token instead.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"engagement/internal/core"
	"engagement/internal/logging"
	"engagement/pkg/domain"
)

// DefaultIdentityHeader carries the caller email when no other header is configured.
const DefaultIdentityHeader = "X-Authenticated-Email"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Backend is the service surface the handlers drive.
type Backend interface {
	PostUpdate(ctx context.Context, token string, payload map[string]any, alwaysCreate bool) (core.PushResult, error)
	CreateProject(ctx context.Context, caller core.Caller, raw map[string]any) (*domain.Project, error)
	GetProject(ctx context.Context, caller core.Caller, id string) (*domain.Project, error)
	UpdateProject(ctx context.Context, caller core.Caller, id string, partial map[string]any) (*domain.Project, error)
	DeleteProject(ctx context.Context, caller core.Caller, id string) (int, error)
	ListUpdates(ctx context.Context, caller core.Caller, projectID string) ([]*domain.Update, error)
	GetUpdate(ctx context.Context, caller core.Caller, projectID, updateID string) (*domain.Update, error)
	CreateUpdate(ctx context.Context, caller core.Caller, projectID string, raw map[string]any) (*domain.Update, error)
	EditUpdate(ctx context.Context, caller core.Caller, projectID, updateID string, partial map[string]any) (*domain.Update, error)
	DeleteUpdate(ctx context.Context, caller core.Caller, projectID, updateID string) error
	IssueProjectToken(ctx context.Context, caller core.Caller, projectID string, role domain.Role, name string) (core.IssuedToken, error)
}

var _ Backend = (*core.Service)(nil)

// Handler serves the engagement API.
type Handler struct {
	backend        Backend
	logger         logging.Logger
	identityHeader string
	gatherer       prometheus.Gatherer
	router         *mux.Router
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used for 5xx responses.
func WithLogger(l logging.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithIdentityHeader names the header carrying the caller email.
func WithIdentityHeader(name string) Option {
	return func(h *Handler) {
		if name != "" {
			h.identityHeader = name
		}
	}
}

// WithGatherer exposes g on /metrics. Without it /metrics is not routed.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = g }
}

// NewHandler builds the router over backend.
func NewHandler(backend Backend, opts ...Option) *Handler {
	h := &Handler{
		backend:        backend,
		logger:         logging.Nop(),
		identityHeader: DefaultIdentityHeader,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.router = h.routes()
	return h
}

func (h *Handler) routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	if h.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/updates", h.handlePostUpdate).Methods(http.MethodPost)

	api.HandleFunc("/projects", h.handleCreateProject).Methods(http.MethodPost)
	api.HandleFunc("/projects/{projectId}", h.handleGetProject).Methods(http.MethodGet)
	api.HandleFunc("/projects/{projectId}", h.handleUpdateProject).Methods(http.MethodPut)
	api.HandleFunc("/projects/{projectId}", h.handleDeleteProject).Methods(http.MethodDelete)

	api.HandleFunc("/projects/{projectId}/updates", h.handleListUpdates).Methods(http.MethodGet)
	api.HandleFunc("/projects/{projectId}/updates", h.handleCreateUpdate).Methods(http.MethodPost)
	api.HandleFunc("/projects/{projectId}/updates/{updateId}", h.handleGetUpdate).Methods(http.MethodGet)
	api.HandleFunc("/projects/{projectId}/updates/{updateId}", h.handleEditUpdate).Methods(http.MethodPut)
	api.HandleFunc("/projects/{projectId}/updates/{updateId}", h.handleDeleteUpdate).Methods(http.MethodDelete)

	api.HandleFunc("/projects/{projectId}/tokens", h.handleIssueToken).Methods(http.MethodPost)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, StatusNotFound, "route not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, StatusInvalidArgument, "method not allowed", nil)
	})
	return router
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) caller(r *http.Request) core.Caller {
	return core.Caller{Email: strings.TrimSpace(r.Header.Get(h.identityHeader))}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type pushRequest struct {
	Update       map[string]any `json:"update"`
	AlwaysCreate bool           `json:"alwaysCreate"`
}

func (h *Handler) handlePostUpdate(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, StatusUnauthenticated, "missing bearer token", nil)
		return
	}
	var req pushRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Update == nil {
		writeError(w, http.StatusBadRequest, StatusInvalidArgument, "update payload is required",
			[]domain.FieldError{{Path: "update", Reason: "required"}})
		return
	}
	res, err := h.backend.PostUpdate(r.Context(), token, req.Update, req.AlwaysCreate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if !h.decode(w, r, &raw) {
		return
	}
	p, err := h.backend.CreateProject(r.Context(), h.caller(r), raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectView(p))
}

func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.backend.GetProject(r.Context(), h.caller(r), mux.Vars(r)["projectId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectView(p))
}

func (h *Handler) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if !h.decode(w, r, &partial) {
		return
	}
	p, err := h.backend.UpdateProject(r.Context(), h.caller(r), mux.Vars(r)["projectId"], partial)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectView(p))
}

func (h *Handler) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	n, err := h.backend.DeleteProject(r.Context(), h.caller(r), mux.Vars(r)["projectId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deletedUpdates": n})
}

func (h *Handler) handleListUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := h.backend.ListUpdates(r.Context(), h.caller(r), mux.Vars(r)["projectId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(updates))
	for _, u := range updates {
		out = append(out, updateView(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"updates": out})
}

func (h *Handler) handleGetUpdate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	u, err := h.backend.GetUpdate(r.Context(), h.caller(r), vars["projectId"], vars["updateId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateView(u))
}

func (h *Handler) handleCreateUpdate(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if !h.decode(w, r, &raw) {
		return
	}
	u, err := h.backend.CreateUpdate(r.Context(), h.caller(r), mux.Vars(r)["projectId"], raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, updateView(u))
}

func (h *Handler) handleEditUpdate(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if !h.decode(w, r, &partial) {
		return
	}
	vars := mux.Vars(r)
	u, err := h.backend.EditUpdate(r.Context(), h.caller(r), vars["projectId"], vars["updateId"], partial)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateView(u))
}

func (h *Handler) handleDeleteUpdate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.backend.DeleteUpdate(r.Context(), h.caller(r), vars["projectId"], vars["updateId"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type issueTokenRequest struct {
	Name string      `json:"name"`
	Role domain.Role `json:"role"`
}

func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = domain.RoleAuthor
	}
	issued, err := h.backend.IssueProjectToken(r.Context(), h.caller(r), mux.Vars(r)["projectId"], req.Role, req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, StatusInvalidArgument, "invalid JSON body: "+err.Error(), nil)
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func projectView(p *domain.Project) map[string]any {
	out := p.ToObject()
	out["id"] = p.ID()
	if err := p.Err(); err != nil {
		out["error"] = err.Error()
	}
	return out
}

func updateView(u *domain.Update) map[string]any {
	out := u.ToObject()
	out["id"] = u.ID()
	out["type"] = string(u.Type())
	if err := u.Err(); err != nil {
		out["error"] = err.Error()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
