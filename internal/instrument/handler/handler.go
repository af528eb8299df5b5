package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"coverline/internal/coverage"
	"coverline/internal/instrument/models"
	purchasemodels "coverline/internal/purchase/models"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/platform/httputil"
	"coverline/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

type Service interface {
	Create(ctx context.Context, owner id.UserID, attrs models.Attributes) (*models.Instrument, error)
	Get(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID) (*models.Instrument, error)
	List(ctx context.Context, kind id.InstrumentKind) ([]*models.Instrument, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Instrument, error)
	Update(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID, attrs models.Attributes) (*models.Instrument, error)
	Delete(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID) error
}

// Coverage runs the cascades that touch purchases.
type Coverage interface {
	Confirm(ctx context.Context, userID id.UserID, kind id.InstrumentKind, instrumentID id.InstrumentID, purchaseDate, expiryDate time.Time) (*coverage.ConfirmResult, error)
	CancelInstrument(ctx context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID) (*coverage.InstrumentCancelResult, error)
}

type Handler struct {
	instruments Service
	coverage    Coverage
	pricer      models.Pricer
	logger      *slog.Logger
}

func New(instruments Service, cov Coverage, pricer models.Pricer, logger *slog.Logger) *Handler {
	return &Handler{instruments: instruments, coverage: cov, pricer: pricer, logger: logger}
}

// Register mounts the quote and instrument routes. Callers must be
// authenticated.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/quotes/{kind}", h.HandleQuote)
	r.Route("/api/instruments/{kind}", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
		r.Post("/{id}/confirm", h.HandleConfirm)
		r.Put("/{id}/cancel", h.HandleCancel)
	})
}

// ConfirmRequest is the optional body of the confirm route. Empty dates
// default to today and one year later.
type ConfirmRequest struct {
	PurchaseDate string `json:"purchase_date"`
	ExpiryDate   string `json:"expiry_date"`

	purchaseDate time.Time
	expiryDate   time.Time
}

func (r *ConfirmRequest) Normalize() {
	r.PurchaseDate = strings.TrimSpace(r.PurchaseDate)
	r.ExpiryDate = strings.TrimSpace(r.ExpiryDate)
}

func (r *ConfirmRequest) Validate() error {
	var err error
	if r.PurchaseDate != "" {
		if r.purchaseDate, err = time.Parse(purchasemodels.DateLayout, r.PurchaseDate); err != nil {
			return dErrors.New(dErrors.CodeValidation, "purchase_date must be YYYY-MM-DD")
		}
	}
	if r.ExpiryDate != "" {
		if r.expiryDate, err = time.Parse(purchasemodels.DateLayout, r.ExpiryDate); err != nil {
			return dErrors.New(dErrors.CodeValidation, "expiry_date must be YYYY-MM-DD")
		}
	}
	return nil
}

func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, attrs, ok := h.decodeAttributes(w, r)
	if !ok {
		return
	}
	details, err := models.Price(ctx, h.pricer, attrs)
	if err != nil {
		h.fail(ctx, w, "quote failed", err, "kind", string(kind))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, details)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, attrs, ok := h.decodeAttributes(w, r)
	if !ok {
		return
	}
	inst, err := h.instruments.Create(ctx, requestcontext.UserID(ctx), attrs)
	if err != nil {
		h.fail(ctx, w, "create policy failed", err, "kind", string(kind))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, inst)
}

// HandleList returns every instrument of the kind to admins and the
// caller's own instruments to customers.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, err := id.ParseInstrumentKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var list []*models.Instrument
	if httputil.IsAdmin(ctx) {
		list, err = h.instruments.List(ctx, kind)
	} else {
		list, err = h.instruments.ListByUser(ctx, requestcontext.UserID(ctx))
		list = lo.Filter(list, func(inst *models.Instrument, _ int) bool { return inst.Kind == kind })
	}
	if err != nil {
		h.fail(ctx, w, "list policies failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.load(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inst)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inst, ok := h.load(w, r)
	if !ok {
		return
	}
	attrs, err := readAttributes(w, r, inst.Kind)
	if err != nil {
		h.fail(ctx, w, "invalid policy attributes", err)
		return
	}
	updated, err := h.instruments.Update(ctx, inst.Kind, inst.ID, attrs)
	if err != nil {
		h.fail(ctx, w, "update policy failed", err, "instrument_id", inst.ID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

// HandleDelete removes a PENDING instrument. Bound instruments are
// cancelled instead.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inst, ok := h.load(w, r)
	if !ok {
		return
	}
	if inst.Status != models.StatusPending {
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "only pending policies can be deleted"))
		return
	}
	if err := h.instruments.Delete(ctx, inst.Kind, inst.ID); err != nil {
		h.fail(ctx, w, "delete policy failed", err, "instrument_id", inst.ID.String())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inst, ok := h.load(w, r)
	if !ok {
		return
	}

	req := &ConfirmRequest{}
	if r.ContentLength != 0 {
		if req, ok = httputil.DecodeAndPrepare[ConfirmRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx)); !ok {
			return
		}
	}

	res, err := h.coverage.Confirm(ctx, inst.UserID, inst.Kind, inst.ID, req.purchaseDate, req.expiryDate)
	if err != nil {
		h.fail(ctx, w, "confirm policy failed", err, "instrument_id", inst.ID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inst, ok := h.load(w, r)
	if !ok {
		return
	}
	res, err := h.coverage.CancelInstrument(ctx, inst.Kind, inst.ID)
	if err != nil {
		h.fail(ctx, w, "cancel policy failed", err, "instrument_id", inst.ID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// load resolves {kind}/{id} and checks the caller may see the instrument.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*models.Instrument, bool) {
	ctx := r.Context()
	kind, err := id.ParseInstrumentKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	instrumentID, err := id.ParseInstrumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	inst, err := h.instruments.Get(ctx, kind, instrumentID)
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	if err := httputil.RequireOwner(ctx, inst.UserID); err != nil {
		h.fail(ctx, w, "policy access denied", err, "instrument_id", inst.ID.String())
		return nil, false
	}
	return inst, true
}

func (h *Handler) decodeAttributes(w http.ResponseWriter, r *http.Request) (id.InstrumentKind, models.Attributes, bool) {
	kind, err := id.ParseInstrumentKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", nil, false
	}
	attrs, err := readAttributes(w, r, kind)
	if err != nil {
		h.fail(r.Context(), w, "invalid policy attributes", err, "kind", string(kind))
		return "", nil, false
	}
	return kind, attrs, true
}

func readAttributes(w http.ResponseWriter, r *http.Request, kind id.InstrumentKind) (models.Attributes, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return models.DecodeAttributes(kind, raw)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	h.logger.WarnContext(ctx, msg, append([]any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}, attrs...)...)
	httputil.WriteError(w, err)
}
