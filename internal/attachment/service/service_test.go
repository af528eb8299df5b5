package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"coverline/internal/attachment/filestore"
	"coverline/internal/attachment/models"
	"coverline/internal/attachment/store"
	claimmodels "coverline/internal/claim/models"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/platform/audit/publisher"
	auditmemory "coverline/pkg/platform/audit/store/memory"
	"coverline/pkg/requestcontext"
	"coverline/pkg/testutil"
)

type knownUsers map[id.UserID]bool

func (k knownUsers) Exists(_ context.Context, userID id.UserID) (bool, error) {
	return k[userID], nil
}

type knownClaims map[id.ClaimID]*claimmodels.Claim

func (k knownClaims) GetByID(_ context.Context, claimID id.ClaimID) (*claimmodels.Claim, error) {
	c, ok := k[claimID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "Claim not found")
	}
	return c, nil
}

type recordingDeliverer struct {
	delivered []*models.Notification
	err       error
}

func (r *recordingDeliverer) Deliver(_ context.Context, n *models.Notification) error {
	r.delivered = append(r.delivered, n)
	return r.err
}

// =============================================================================
// Attachment Service Test Suite
// =============================================================================
// Documents and notifications against in-memory stores and object storage.

type AttachmentSuite struct {
	suite.Suite
	ctx           context.Context
	files         *filestore.MemoryStore
	deliverer     *recordingDeliverer
	auditStore    *auditmemory.InMemoryStore
	documents     *DocumentService
	notifications *NotificationService
	owner         id.UserID
	claim         *claimmodels.Claim
}

func TestAttachmentSuite(t *testing.T) {
	suite.Run(t, new(AttachmentSuite))
}

func (s *AttachmentSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s.owner = id.NewUserID()
	s.claim = claimmodels.New(id.NewClaimID(), s.owner, id.NewPurchaseID(), requestcontext.Now(s.ctx))

	users := knownUsers{s.owner: true}
	claims := knownClaims{s.claim.ID: s.claim}
	s.files = filestore.NewMemory(15 * time.Minute)
	s.deliverer = &recordingDeliverer{}
	s.auditStore = auditmemory.NewInMemoryStore()
	opts := []Option{
		WithLogger(testutil.DiscardLogger()),
		WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
	}
	s.documents = NewDocumentService(store.NewInMemoryDocumentStore(), s.files, users, claims, opts...)
	s.notifications = NewNotificationService(store.NewInMemoryNotificationStore(), s.deliverer, users, claims, opts...)
}

func (s *AttachmentSuite) upload() *models.Document {
	doc, err := s.documents.Upload(s.ctx, s.owner, s.claim.ID, "invoice", "repair.pdf", []byte("%PDF-1.7 invoice"))
	s.Require().NoError(err)
	return doc
}

func (s *AttachmentSuite) TestUpload() {
	s.Run("stores content and an unverified record", func() {
		doc := s.upload()

		s.Equal(models.DocumentType("INVOICE"), doc.Type)
		s.False(doc.Verified)
		s.Equal(requestcontext.Now(s.ctx), doc.UploadedAt)
		content, ok := s.files.Object(doc.FileKey)
		s.True(ok)
		s.Equal("%PDF-1.7 invoice", string(content))
		s.Contains(s.auditStore.Actions(s.owner), "document_uploaded")
	})

	s.Run("unknown claim", func() {
		_, err := s.documents.Upload(s.ctx, s.owner, id.NewClaimID(), "photo", "car.jpg", []byte("jpg"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown user", func() {
		_, err := s.documents.Upload(s.ctx, id.NewUserID(), s.claim.ID, "photo", "car.jpg", []byte("jpg"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("claim of another user", func() {
		other := id.NewUserID()
		svc := NewDocumentService(store.NewInMemoryDocumentStore(), s.files,
			knownUsers{other: true}, knownClaims{s.claim.ID: s.claim})

		_, err := svc.Upload(s.ctx, other, s.claim.ID, "photo", "car.jpg", []byte("jpg"))
		s.True(dErrors.HasCode(err, dErrors.CodeOwnershipMismatch))
	})

	s.Run("empty file and blank type are rejected", func() {
		_, err := s.documents.Upload(s.ctx, s.owner, s.claim.ID, "photo", "car.jpg", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.documents.Upload(s.ctx, s.owner, s.claim.ID, "  ", "car.jpg", []byte("jpg"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *AttachmentSuite) TestVerify() {
	doc := s.upload()

	verified, err := s.documents.Verify(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.True(verified.Verified)

	again, err := s.documents.Verify(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.True(again.Verified)

	_, err = s.documents.Verify(s.ctx, id.NewDocumentID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *AttachmentSuite) TestReplace() {
	doc := s.upload()
	_, err := s.documents.Verify(s.ctx, doc.ID)
	s.Require().NoError(err)

	replaced, err := s.documents.Replace(s.ctx, doc.ID, "repair-v2.pdf", []byte("%PDF-1.7 corrected"))
	s.Require().NoError(err)

	s.Equal(doc.ID, replaced.ID)
	s.True(replaced.Verified)
	s.NotEqual(doc.FileKey, replaced.FileKey)
	_, oldKept := s.files.Object(doc.FileKey)
	s.False(oldKept)
	content, ok := s.files.Object(replaced.FileKey)
	s.True(ok)
	s.Equal("%PDF-1.7 corrected", string(content))

	stored, err := s.documents.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.True(stored.Verified)
	again, err := s.documents.Verify(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.True(again.Verified)
}

func (s *AttachmentSuite) TestDeleteAndDownload() {
	doc := s.upload()

	url, ttl, err := s.documents.DownloadURL(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Contains(url, doc.FileKey)
	s.Equal(15*time.Minute, ttl)

	s.Require().NoError(s.documents.Delete(s.ctx, doc.ID))
	s.Zero(s.files.Len())

	_, err = s.documents.Get(s.ctx, doc.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, _, err = s.documents.DownloadURL(s.ctx, doc.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *AttachmentSuite) TestListings() {
	s.upload()
	s.upload()

	byClaim, err := s.documents.ListByClaim(s.ctx, s.claim.ID)
	s.Require().NoError(err)
	s.Len(byClaim, 2)

	byUser, err := s.documents.ListByUser(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Len(byUser, 2)

	_, err = s.documents.ListByClaim(s.ctx, id.NewClaimID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *AttachmentSuite) TestNotifications() {
	s.Run("send persists and delivers", func() {
		claimID := s.claim.ID
		n, err := s.notifications.Send(s.ctx, s.owner, &claimID, "Your claim has been APPROVED")
		s.Require().NoError(err)
		s.False(n.Read)
		s.Len(s.deliverer.delivered, 1)

		list, err := s.notifications.ListForUser(s.ctx, s.owner)
		s.Require().NoError(err)
		s.Len(list, 1)
	})

	s.Run("delivery failure keeps the notification", func() {
		s.deliverer.err = errors.New("broker down")
		defer func() { s.deliverer.err = nil }()

		_, err := s.notifications.Send(s.ctx, s.owner, nil, "Welcome")
		s.Require().NoError(err)
		list, err := s.notifications.ListForUser(s.ctx, s.owner)
		s.Require().NoError(err)
		s.Len(list, 2)
	})

	s.Run("unknown claim", func() {
		unknown := id.NewClaimID()
		_, err := s.notifications.Send(s.ctx, s.owner, &unknown, "hello")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("mark read is scoped to the owner", func() {
		n, err := s.notifications.Send(s.ctx, s.owner, nil, "Policy renewed")
		s.Require().NoError(err)

		_, err = s.notifications.MarkRead(s.ctx, id.NewUserID(), n.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		read, err := s.notifications.MarkRead(s.ctx, s.owner, n.ID)
		s.Require().NoError(err)
		s.True(read.Read)
	})

	s.Run("mark read of unknown notification", func() {
		_, err := s.notifications.MarkRead(s.ctx, s.owner, id.NewNotificationID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
