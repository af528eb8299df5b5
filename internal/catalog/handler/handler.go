package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"coverline/internal/catalog/models"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/platform/httputil"
	"coverline/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, attrs models.Attributes) (*models.Policy, error)
	Update(ctx context.Context, policyID id.PolicyID, attrs models.Attributes) (*models.Policy, error)
	Get(ctx context.Context, policyID id.PolicyID) (*models.Policy, error)
	List(ctx context.Context, filter models.Filter) ([]*models.Policy, error)
	Delete(ctx context.Context, policyID id.PolicyID) error
}

type Handler struct {
	catalog Service
	logger  *slog.Logger
}

func New(catalog Service, logger *slog.Logger) *Handler {
	return &Handler{catalog: catalog, logger: logger}
}

// Register mounts the customer browsing route.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/customer/availablepolicies", h.HandleList)
}

// RegisterAdmin mounts catalog management. The caller guards it with the
// admin middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/api/admin/policies", h.HandleCreate)
	r.Get("/api/admin/policies", h.HandleList)
	r.Get("/api/admin/policies/{id}", h.HandleGet)
	r.Put("/api/admin/policies/{id}", h.HandleUpdate)
	r.Delete("/api/admin/policies/{id}", h.HandleDelete)
}

// PolicyRequest is the body of the create and update routes.
type PolicyRequest struct {
	models.Attributes
}

func (r *PolicyRequest) Normalize() {
	r.Attributes.Normalize()
}

func (r *PolicyRequest) Validate() error {
	return r.Attributes.Validate()
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[PolicyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	policy, err := h.catalog.Create(ctx, req.Attributes)
	if err != nil {
		h.fail(ctx, w, "create catalog policy failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, policy)
}

// HandleList serves both listing routes. ?type= matches case-insensitively
// and ?active_only= takes a boolean; either may be omitted.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.catalog.List(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "list catalog policies failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	policyID, err := id.ParsePolicyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	policy, err := h.catalog.Get(r.Context(), policyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, policy)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID, err := id.ParsePolicyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[PolicyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	policy, err := h.catalog.Update(ctx, policyID, req.Attributes)
	if err != nil {
		h.fail(ctx, w, "update catalog policy failed", err, "policy_id", policyID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, policy)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID, err := id.ParsePolicyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.catalog.Delete(ctx, policyID); err != nil {
		h.fail(ctx, w, "delete catalog policy failed", err, "policy_id", policyID.String())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseFilter(r *http.Request) (models.Filter, error) {
	query := r.URL.Query()
	filter := models.Filter{Type: strings.TrimSpace(query.Get("type"))}
	if raw := query.Get("active_only"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return models.Filter{}, dErrors.New(dErrors.CodeValidation, "active_only must be true or false")
		}
		filter.Active = &active
	}
	return filter, nil
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	h.logger.WarnContext(ctx, msg, append([]any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}, attrs...)...)
	httputil.WriteError(w, err)
}
