package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"coverline/internal/claim/models"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/platform/httputil"
	"coverline/pkg/requestcontext"
)

type Service interface {
	Raise(ctx context.Context, userID id.UserID, purchaseID id.PurchaseID) (*models.Claim, error)
	UpdateStatus(ctx context.Context, claimID id.ClaimID, status string) (*models.Claim, error)
	Withdraw(ctx context.Context, claimID id.ClaimID) error
	GetByID(ctx context.Context, claimID id.ClaimID) (*models.Claim, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Claim, error)
	ListByStatus(ctx context.Context, status string) ([]*models.Claim, error)
	ListAll(ctx context.Context) ([]*models.Claim, error)
	ListByPurchase(ctx context.Context, purchaseID id.PurchaseID) ([]*models.Claim, error)
	CountPending(ctx context.Context) (int, error)
}

type Handler struct {
	claims Service
	logger *slog.Logger
}

func New(claims Service, logger *slog.Logger) *Handler {
	return &Handler{claims: claims, logger: logger}
}

// Register mounts the customer claim routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/claims", h.HandleRaise)
	r.Get("/api/claims", h.HandleList)
	r.Get("/api/claims/{id}", h.HandleGet)
	r.Delete("/api/claims/{id}", h.HandleWithdraw)
}

// RegisterAdmin mounts the review routes. The caller guards them with the
// admin middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/api/admin/claims", h.HandleAdminList)
	r.Get("/api/admin/claims/pending/count", h.HandlePendingCount)
	r.Put("/api/admin/claims/{id}/status", h.HandleUpdateStatus)
}

// RaiseRequest is the body of POST /api/claims.
type RaiseRequest struct {
	PurchaseID string `json:"purchase_id"`

	purchaseID id.PurchaseID
}

func (r *RaiseRequest) Normalize() {
	r.PurchaseID = strings.TrimSpace(r.PurchaseID)
}

func (r *RaiseRequest) Validate() error {
	if r.PurchaseID == "" {
		return dErrors.New(dErrors.CodeValidation, "purchase_id is required")
	}
	purchaseID, err := id.ParsePurchaseID(r.PurchaseID)
	if err != nil {
		return err
	}
	r.purchaseID = purchaseID
	return nil
}

// StatusRequest is the body of PUT /api/admin/claims/{id}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

func (r *StatusRequest) Normalize() {
	r.Status = strings.ToUpper(strings.TrimSpace(r.Status))
}

func (r *StatusRequest) Validate() error {
	if r.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	return nil
}

type CountResponse struct {
	Count int `json:"count"`
}

// HandleRaise files a claim against one of the caller's purchases.
func (h *Handler) HandleRaise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RaiseRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	claim, err := h.claims.Raise(ctx, requestcontext.UserID(ctx), req.purchaseID)
	if err != nil {
		h.fail(ctx, w, "raise claim failed", err, "purchase_id", req.purchaseID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, claim)
}

// HandleList lists the caller's claims. ?purchase_id= narrows to one
// purchase; admins may pass ?user_id= for another user.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	if raw := query.Get("purchase_id"); raw != "" {
		purchaseID, err := id.ParsePurchaseID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		list, err := h.claims.ListByPurchase(ctx, purchaseID)
		if err != nil {
			h.fail(ctx, w, "list claims failed", err, "purchase_id", raw)
			return
		}
		if !httputil.IsAdmin(ctx) {
			caller := requestcontext.UserID(ctx)
			list = lo.Filter(list, func(c *models.Claim, _ int) bool { return c.UserID == caller })
		}
		httputil.WriteJSON(w, http.StatusOK, list)
		return
	}

	userID := requestcontext.UserID(ctx)
	if raw := query.Get("user_id"); raw != "" {
		parsed, err := id.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if err := httputil.RequireOwner(ctx, parsed); err != nil {
			h.fail(ctx, w, "claim listing denied", err, "user_id", raw)
			return
		}
		userID = parsed
	}
	list, err := h.claims.ListByUser(ctx, userID)
	if err != nil {
		h.fail(ctx, w, "list claims failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	claim, ok := h.load(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, claim)
}

// HandleWithdraw deletes a PENDING claim.
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claim, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.claims.Withdraw(ctx, claim.ID); err != nil {
		h.fail(ctx, w, "withdraw claim failed", err, "claim_id", claim.ID.String())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAdminList lists every claim, or those with ?status=.
func (h *Handler) HandleAdminList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		list []*models.Claim
		err  error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		list, err = h.claims.ListByStatus(ctx, status)
	} else {
		list, err = h.claims.ListAll(ctx)
	}
	if err != nil {
		h.fail(ctx, w, "list claims failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) HandlePendingCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := h.claims.CountPending(ctx)
	if err != nil {
		h.fail(ctx, w, "count pending claims failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CountResponse{Count: n})
}

// HandleUpdateStatus records a review decision.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := id.ParseClaimID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[StatusRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	claim, err := h.claims.UpdateStatus(ctx, claimID, req.Status)
	if err != nil {
		h.fail(ctx, w, "update claim status failed", err, "claim_id", claimID.String(), "status", req.Status)
		return
	}
	h.logger.InfoContext(ctx, "claim status updated",
		"request_id", requestcontext.RequestID(ctx),
		"claim_id", claim.ID.String(),
		"status", string(claim.Status),
	)
	httputil.WriteJSON(w, http.StatusOK, claim)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*models.Claim, bool) {
	ctx := r.Context()
	claimID, err := id.ParseClaimID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	claim, err := h.claims.GetByID(ctx, claimID)
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	if err := httputil.RequireOwner(ctx, claim.UserID); err != nil {
		h.fail(ctx, w, "claim access denied", err, "claim_id", claim.ID.String())
		return nil, false
	}
	return claim, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	h.logger.WarnContext(ctx, msg, append([]any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}, attrs...)...)
	httputil.WriteError(w, err)
}
