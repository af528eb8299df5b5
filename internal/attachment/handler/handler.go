package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"coverline/internal/attachment/models"
	"coverline/internal/attachment/service"
	claimmodels "coverline/internal/claim/models"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/platform/httputil"
	"coverline/pkg/requestcontext"
)

// multipartOverhead leaves room for the form fields around the file part.
const multipartOverhead = 1 << 20

type Documents interface {
	Upload(ctx context.Context, userID id.UserID, claimID id.ClaimID, docType, fileName string, content []byte) (*models.Document, error)
	Get(ctx context.Context, documentID id.DocumentID) (*models.Document, error)
	ListAll(ctx context.Context) ([]*models.Document, error)
	ListByClaim(ctx context.Context, claimID id.ClaimID) ([]*models.Document, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Document, error)
	Verify(ctx context.Context, documentID id.DocumentID) (*models.Document, error)
	Replace(ctx context.Context, documentID id.DocumentID, fileName string, content []byte) (*models.Document, error)
	Delete(ctx context.Context, documentID id.DocumentID) error
	DownloadURL(ctx context.Context, documentID id.DocumentID) (string, time.Duration, error)
}

type Notifications interface {
	Send(ctx context.Context, userID id.UserID, claimID *id.ClaimID, message string) (*models.Notification, error)
	ListForUser(ctx context.Context, userID id.UserID) ([]*models.Notification, error)
	MarkRead(ctx context.Context, userID id.UserID, notificationID id.NotificationID) (*models.Notification, error)
}

// Claims resolves the claim a document route is scoped to.
type Claims interface {
	GetByID(ctx context.Context, claimID id.ClaimID) (*claimmodels.Claim, error)
}

type Handler struct {
	documents     Documents
	notifications Notifications
	claims        Claims
	logger        *slog.Logger
}

func New(documents Documents, notifications Notifications, claims Claims, logger *slog.Logger) *Handler {
	return &Handler{documents: documents, notifications: notifications, claims: claims, logger: logger}
}

// Register mounts the customer document and notification routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/claims/{id}/documents", h.HandleUpload)
	r.Get("/api/claims/{id}/documents", h.HandleListByClaim)

	r.Get("/api/documents", h.HandleListMine)
	r.Get("/api/documents/{id}", h.HandleGet)
	r.Put("/api/documents/{id}", h.HandleReplace)
	r.Delete("/api/documents/{id}", h.HandleDelete)

	r.Get("/api/notifications", h.HandleListNotifications)
	r.Put("/api/notifications/{id}/read", h.HandleMarkRead)
}

// RegisterAdmin mounts the review routes. The caller guards them with the
// admin middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/api/admin/documents", h.HandleListAll)
	r.Put("/api/admin/documents/{id}/verify", h.HandleVerify)
	r.Post("/api/admin/notifications", h.HandleSend)
}

// DocumentResponse is a document with a short-lived download link.
type DocumentResponse struct {
	*models.Document
	DownloadURL string `json:"download_url"`
	ExpiresIn   int    `json:"expires_in"`
}

// SendRequest is the body of POST /api/admin/notifications.
type SendRequest struct {
	UserID  string `json:"user_id"`
	ClaimID string `json:"claim_id"`
	Message string `json:"message"`

	userID  id.UserID
	claimID *id.ClaimID
}

func (r *SendRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
	r.ClaimID = strings.TrimSpace(r.ClaimID)
	r.Message = strings.TrimSpace(r.Message)
}

func (r *SendRequest) Validate() error {
	userID, err := id.ParseUserID(r.UserID)
	if err != nil {
		return err
	}
	r.userID = userID
	if r.ClaimID != "" {
		claimID, err := id.ParseClaimID(r.ClaimID)
		if err != nil {
			return err
		}
		r.claimID = &claimID
	}
	if r.Message == "" {
		return dErrors.New(dErrors.CodeValidation, "message is required")
	}
	if len(r.Message) > 2000 {
		return dErrors.New(dErrors.CodeValidation, "message must be at most 2000 characters")
	}
	return nil
}

// HandleUpload stores a multipart upload (fields document_type and file)
// against one of the caller's claims.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := id.ParseClaimID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	fileName, content, err := readUpload(w, r)
	if err != nil {
		h.fail(ctx, w, "invalid document upload", err, "claim_id", claimID.String())
		return
	}
	doc, err := h.documents.Upload(ctx, requestcontext.UserID(ctx), claimID, r.FormValue("document_type"), fileName, content)
	if err != nil {
		h.fail(ctx, w, "upload document failed", err, "claim_id", claimID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

func (h *Handler) HandleListByClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := id.ParseClaimID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	claim, err := h.claims.GetByID(ctx, claimID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := httputil.RequireOwner(ctx, claim.UserID); err != nil {
		h.fail(ctx, w, "claim documents access denied", err, "claim_id", claimID.String())
		return
	}
	list, err := h.documents.ListByClaim(ctx, claimID)
	if err != nil {
		h.fail(ctx, w, "list documents failed", err, "claim_id", claimID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.documents.ListByUser(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "list documents failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

// HandleGet returns the document with a presigned download URL.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, ok := h.load(w, r)
	if !ok {
		return
	}
	url, ttl, err := h.documents.DownloadURL(ctx, doc.ID)
	if err != nil {
		h.fail(ctx, w, "presign document failed", err, "document_id", doc.ID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DocumentResponse{
		Document:    doc,
		DownloadURL: url,
		ExpiresIn:   int(ttl.Seconds()),
	})
}

// HandleReplace swaps the document content. Verification is reset.
func (h *Handler) HandleReplace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, ok := h.load(w, r)
	if !ok {
		return
	}
	fileName, content, err := readUpload(w, r)
	if err != nil {
		h.fail(ctx, w, "invalid document upload", err, "document_id", doc.ID.String())
		return
	}
	updated, err := h.documents.Replace(ctx, doc.ID, fileName, content)
	if err != nil {
		h.fail(ctx, w, "replace document failed", err, "document_id", doc.ID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.documents.Delete(ctx, doc.ID); err != nil {
		h.fail(ctx, w, "delete document failed", err, "document_id", doc.ID.String())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.documents.ListAll(ctx)
	if err != nil {
		h.fail(ctx, w, "list documents failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, err := h.documents.Verify(ctx, documentID)
	if err != nil {
		h.fail(ctx, w, "verify document failed", err, "document_id", documentID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.notifications.ListForUser(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, "list notifications failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	notificationID, err := id.ParseNotificationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	n, err := h.notifications.MarkRead(ctx, requestcontext.UserID(ctx), notificationID)
	if err != nil {
		h.fail(ctx, w, "mark notification read failed", err, "notification_id", notificationID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, n)
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SendRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	n, err := h.notifications.Send(ctx, req.userID, req.claimID, req.Message)
	if err != nil {
		h.fail(ctx, w, "send notification failed", err, "user_id", req.UserID)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, n)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*models.Document, bool) {
	ctx := r.Context()
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	doc, err := h.documents.Get(ctx, documentID)
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	if err := httputil.RequireOwner(ctx, doc.UserID); err != nil {
		h.fail(ctx, w, "document access denied", err, "document_id", doc.ID.String())
		return nil, false
	}
	return doc, true
}

// readUpload reads the "file" part of a multipart body. Oversized files are
// read one byte past the limit so the service reports them.
func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxDocumentSize+multipartOverhead)
	if err := r.ParseMultipartForm(service.MaxDocumentSize + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, dErrors.New(dErrors.CodeValidation, "file exceeds 10MB")
		}
		return "", nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "expected a multipart form")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil, dErrors.New(dErrors.CodeValidation, "file is required")
		}
		return "", nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable file part")
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	content, err := io.ReadAll(io.LimitReader(file, service.MaxDocumentSize+1))
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable file part")
	}
	return header.Filename, content, nil
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	h.logger.WarnContext(ctx, msg, append([]any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}, attrs...)...)
	httputil.WriteError(w, err)
}
