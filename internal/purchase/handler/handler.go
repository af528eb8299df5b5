package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"coverline/internal/coverage"
	"coverline/internal/purchase/models"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/platform/httputil"
	"coverline/pkg/requestcontext"
)

type Service interface {
	GetByID(ctx context.Context, purchaseID id.PurchaseID) (*models.Purchase, error)
	Update(ctx context.Context, purchaseID id.PurchaseID, ref *models.InstrumentRef, purchaseDate, expiryDate time.Time) (*models.Purchase, error)
	ListForUser(ctx context.Context, userID id.UserID, activeOnly *bool) ([]*models.Purchase, error)
	ListActiveForClaims(ctx context.Context, userID id.UserID) ([]*models.Purchase, error)
}

type Coverage interface {
	Confirm(ctx context.Context, userID id.UserID, kind id.InstrumentKind, instrumentID id.InstrumentID, purchaseDate, expiryDate time.Time) (*coverage.ConfirmResult, error)
	CancelPurchase(ctx context.Context, purchaseID id.PurchaseID) (*coverage.PurchaseCancelResult, error)
}

type Handler struct {
	purchases Service
	coverage  Coverage
	logger    *slog.Logger
}

func New(purchases Service, cov Coverage, logger *slog.Logger) *Handler {
	return &Handler{purchases: purchases, coverage: cov, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/api/purchases", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/claimable", h.HandleClaimable)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}", h.HandleUpdate)
		r.Put("/{id}/cancel", h.HandleCancel)
	})
}

// PurchaseRequest carries an instrument slot and the coverage dates.
type PurchaseRequest struct {
	models.Slots
	PurchaseDate string `json:"purchase_date"`
	ExpiryDate   string `json:"expiry_date"`

	ref          *models.InstrumentRef
	purchaseDate time.Time
	expiryDate   time.Time
}

func (r *PurchaseRequest) Normalize() {
	r.PurchaseDate = strings.TrimSpace(r.PurchaseDate)
	r.ExpiryDate = strings.TrimSpace(r.ExpiryDate)
}

// Validate parses the slots when any is set and the dates when present.
func (r *PurchaseRequest) Validate() error {
	if !r.Slots.IsEmpty() {
		ref, err := r.Slots.Ref()
		if err != nil {
			return err
		}
		r.ref = &ref
	}
	var err error
	if r.PurchaseDate != "" {
		if r.purchaseDate, err = time.Parse(models.DateLayout, r.PurchaseDate); err != nil {
			return dErrors.New(dErrors.CodeValidation, "purchase_date must be YYYY-MM-DD")
		}
	}
	if r.ExpiryDate != "" {
		if r.expiryDate, err = time.Parse(models.DateLayout, r.ExpiryDate); err != nil {
			return dErrors.New(dErrors.CodeValidation, "expiry_date must be YYYY-MM-DD")
		}
	}
	return nil
}

// HandleCreate buys cover for one of the caller's instruments. The purchase
// is created and the instrument bound in one step.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[PurchaseRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if req.ref == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "an instrument reference is required"))
		return
	}
	res, err := h.coverage.Confirm(ctx, requestcontext.UserID(ctx), req.ref.Kind, req.ref.ID, req.purchaseDate, req.expiryDate)
	if err != nil {
		h.fail(ctx, w, "create purchase failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res.Purchase)
}

// HandleList lists the caller's purchases. ?active=true|false filters by
// activity; admins may pass ?user_id= to list another user's purchases.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := h.targetUser(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var activeOnly *bool
	if raw := r.URL.Query().Get("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "active must be true or false"))
			return
		}
		activeOnly = &v
	}
	list, err := h.purchases.ListForUser(ctx, userID, activeOnly)
	if err != nil {
		h.fail(ctx, w, "list purchases failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleClaimable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := h.targetUser(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.purchases.ListActiveForClaims(ctx, userID)
	if err != nil {
		h.fail(ctx, w, "list claimable purchases failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[PurchaseRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	updated, err := h.purchases.Update(ctx, p.ID, req.ref, req.purchaseDate, req.expiryDate)
	if err != nil {
		h.fail(ctx, w, "update purchase failed", err, "purchase_id", p.ID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	res, err := h.coverage.CancelPurchase(ctx, p.ID)
	if err != nil {
		h.fail(ctx, w, "cancel purchase failed", err, "purchase_id", p.ID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*models.Purchase, bool) {
	ctx := r.Context()
	purchaseID, err := id.ParsePurchaseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	p, err := h.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	if err := httputil.RequireOwner(ctx, p.UserID); err != nil {
		h.fail(ctx, w, "purchase access denied", err, "purchase_id", p.ID.String())
		return nil, false
	}
	return p, true
}

// targetUser returns the caller, or the ?user_id= override for admins.
func (h *Handler) targetUser(r *http.Request) (id.UserID, error) {
	ctx := r.Context()
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return requestcontext.UserID(ctx), nil
	}
	userID, err := id.ParseUserID(raw)
	if err != nil {
		return id.UserID{}, err
	}
	if err := httputil.RequireOwner(ctx, userID); err != nil {
		return id.UserID{}, err
	}
	return userID, nil
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	h.logger.WarnContext(ctx, msg, append([]any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}, attrs...)...)
	httputil.WriteError(w, err)
}
