// Package models holds the records attached to a claim: uploaded documents
// and notifications sent to customers.
package models

import (
	"path"
	"strings"
	"time"

	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
)

// DocumentType is a free-form label such as INVOICE or PHOTO, stored
// upper-cased.
type DocumentType string

// ParseDocumentType trims and upper-cases s. Empty and oversized labels are
// rejected.
func ParseDocumentType(s string) (DocumentType, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	if t == "" {
		return "", dErrors.New(dErrors.CodeValidation, "document_type is required")
	}
	if len(t) > 64 {
		return "", dErrors.New(dErrors.CodeValidation, "document_type must be at most 64 characters")
	}
	return DocumentType(t), nil
}

type Document struct {
	ID         id.DocumentID `json:"id"`
	UserID     id.UserID     `json:"user_id"`
	ClaimID    id.ClaimID    `json:"claim_id"`
	Type       DocumentType  `json:"document_type"`
	FileName   string        `json:"file_name"`
	FileKey    string        `json:"-"`
	UploadedAt time.Time     `json:"uploaded_at"`
	Verified   bool          `json:"verified"`
}

// FileKey returns the object key under which a claim document's content is
// stored.
func FileKey(claimID id.ClaimID, documentID id.DocumentID, fileName string) string {
	return "claims/" + claimID.String() + "/" + documentID.String() + "/" + path.Base(fileName)
}

// Verify flips the verified flag and reports whether it changed.
func (d *Document) Verify() bool {
	if d.Verified {
		return false
	}
	d.Verified = true
	return true
}

type Notification struct {
	ID        id.NotificationID `json:"id"`
	UserID    id.UserID         `json:"user_id"`
	ClaimID   *id.ClaimID       `json:"claim_id,omitempty"`
	Message   string            `json:"message"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"created_at"`
}

// MarkRead flips the read flag and reports whether it changed.
func (n *Notification) MarkRead() bool {
	if n.Read {
		return false
	}
	n.Read = true
	return true
}
