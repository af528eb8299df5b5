package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"coverline/internal/attachment/models"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/messages"
	"coverline/pkg/platform/audit"
	"coverline/pkg/platform/sentinel"
	"coverline/pkg/requestcontext"
)

// MaxDocumentSize bounds a single upload.
const MaxDocumentSize = 10 << 20

type DocumentService struct {
	base
	store  DocumentStore
	files  FileStorage
	users  UserDirectory
	claims Claims
}

func NewDocumentService(store DocumentStore, files FileStorage, users UserDirectory, claims Claims, opts ...Option) *DocumentService {
	return &DocumentService{
		base:   newBase(opts),
		store:  store,
		files:  files,
		users:  users,
		claims: claims,
	}
}

// Upload stores content for one of the user's claims and records an
// unverified document.
func (s *DocumentService) Upload(ctx context.Context, userID id.UserID, claimID id.ClaimID, docType, fileName string, content []byte) (*models.Document, error) {
	dt, err := models.ParseDocumentType(docType)
	if err != nil {
		return nil, err
	}
	fileName, err = validateFile(fileName, content)
	if err != nil {
		return nil, err
	}
	if err := requireUser(ctx, s.users, userID); err != nil {
		return nil, err
	}
	claim, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.UserID != userID {
		return nil, dErrors.New(dErrors.CodeOwnershipMismatch, "claim does not belong to user")
	}

	doc := &models.Document{
		ID:         id.NewDocumentID(),
		UserID:     userID,
		ClaimID:    claimID,
		Type:       dt,
		FileName:   fileName,
		UploadedAt: requestcontext.Now(ctx),
	}
	doc.FileKey = models.FileKey(claimID, doc.ID, fileName)

	if err := s.files.Put(ctx, doc.FileKey, http.DetectContentType(content), content); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document")
	}
	if err := s.store.Save(ctx, doc); err != nil {
		s.discard(ctx, doc.FileKey)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save document")
	}

	s.metrics.IncDocumentUploaded()
	s.emit(ctx, documentEvent(doc, audit.EventDocumentUploaded))
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	doc, err := s.store.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, documentNotFound(documentID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	return doc, nil
}

func (s *DocumentService) ListAll(ctx context.Context) ([]*models.Document, error) {
	return wrapDocuments(s.store.ListAll(ctx))
}

func (s *DocumentService) ListByClaim(ctx context.Context, claimID id.ClaimID) ([]*models.Document, error) {
	if _, err := s.claims.GetByID(ctx, claimID); err != nil {
		return nil, err
	}
	return wrapDocuments(s.store.ListByClaim(ctx, claimID))
}

func (s *DocumentService) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Document, error) {
	if err := requireUser(ctx, s.users, userID); err != nil {
		return nil, err
	}
	return wrapDocuments(s.store.ListByUser(ctx, userID))
}

// Verify marks the document verified. Verifying twice is a no-op.
func (s *DocumentService) Verify(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	doc, err := s.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.Verify() {
		return doc, nil
	}
	if err := s.store.Save(ctx, doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save document")
	}
	s.emit(ctx, documentEvent(doc, audit.EventDocumentVerified))
	return doc, nil
}

// Replace swaps the document content. The record keeps its ID and its
// verification flag; the old object is removed.
func (s *DocumentService) Replace(ctx context.Context, documentID id.DocumentID, fileName string, content []byte) (*models.Document, error) {
	fileName, err := validateFile(fileName, content)
	if err != nil {
		return nil, err
	}
	doc, err := s.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}

	oldKey := doc.FileKey
	doc.FileName = fileName
	doc.FileKey = models.FileKey(doc.ClaimID, doc.ID, fileName)
	doc.UploadedAt = requestcontext.Now(ctx)

	if err := s.files.Put(ctx, doc.FileKey, http.DetectContentType(content), content); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document")
	}
	if err := s.store.Save(ctx, doc); err != nil {
		if doc.FileKey != oldKey {
			s.discard(ctx, doc.FileKey)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save document")
	}
	if oldKey != doc.FileKey {
		s.discard(ctx, oldKey)
	}

	s.emit(ctx, documentEvent(doc, audit.EventDocumentReplaced))
	return doc, nil
}

// Delete removes the record, then its content.
func (s *DocumentService) Delete(ctx context.Context, documentID id.DocumentID) error {
	doc, err := s.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, documentID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return documentNotFound(documentID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete document")
	}
	s.discard(ctx, doc.FileKey)
	s.emit(ctx, documentEvent(doc, audit.EventDocumentDeleted))
	return nil
}

// DownloadURL returns a presigned link to the document content and how long
// it stays valid.
func (s *DocumentService) DownloadURL(ctx context.Context, documentID id.DocumentID) (string, time.Duration, error) {
	doc, err := s.Get(ctx, documentID)
	if err != nil {
		return "", 0, err
	}
	url, ttl, err := s.files.PresignGet(ctx, doc.FileKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", 0, documentNotFound(documentID)
		}
		return "", 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign download")
	}
	return url, ttl, nil
}

// discard deletes an object, logging failures. Orphaned objects are harmless.
func (s *DocumentService) discard(ctx context.Context, key string) {
	if err := s.files.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "failed to delete document content",
			"file_key", key,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func validateFile(fileName string, content []byte) (string, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return "", dErrors.New(dErrors.CodeValidation, "file name is required")
	}
	if len(content) == 0 {
		return "", dErrors.New(dErrors.CodeValidation, "file is empty")
	}
	if len(content) > MaxDocumentSize {
		return "", dErrors.New(dErrors.CodeValidation, "file exceeds 10MB")
	}
	return fileName, nil
}

func documentEvent(doc *models.Document, action audit.AuditEvent) audit.Event {
	return audit.Event{
		UserID:   doc.UserID,
		Subject:  doc.ID.String(),
		Action:   string(action),
		Decision: string(doc.Type),
		Reason:   doc.ClaimID.String(),
	}
}

func documentNotFound(documentID id.DocumentID) error {
	return dErrors.New(dErrors.CodeNotFound, messages.Render(messages.DocumentNotFound, documentID))
}

func wrapDocuments(list []*models.Document, err error) ([]*models.Document, error) {
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return list, nil
}
