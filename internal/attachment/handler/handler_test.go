package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coverline/internal/attachment/delivery"
	"coverline/internal/attachment/filestore"
	"coverline/internal/attachment/models"
	"coverline/internal/attachment/service"
	"coverline/internal/attachment/store"
	claimmodels "coverline/internal/claim/models"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
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

type fixture struct {
	router   http.Handler
	files    *filestore.MemoryStore
	owner    id.UserID
	stranger id.UserID
	admin    id.UserID
	claim    *claimmodels.Claim
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{owner: id.NewUserID(), stranger: id.NewUserID(), admin: id.NewUserID()}
	f.claim = claimmodels.New(id.NewClaimID(), f.owner, id.NewPurchaseID(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	users := knownUsers{f.owner: true, f.stranger: true}
	claims := knownClaims{f.claim.ID: f.claim}
	f.files = filestore.NewMemory(15 * time.Minute)

	opts := []service.Option{service.WithLogger(testutil.DiscardLogger())}
	documents := service.NewDocumentService(store.NewInMemoryDocumentStore(), f.files, users, claims, opts...)
	notifications := service.NewNotificationService(store.NewInMemoryNotificationStore(), delivery.Noop{}, users, claims, opts...)

	r := chi.NewRouter()
	h := New(documents, notifications, claims, testutil.DiscardLogger())
	h.Register(r)
	h.RegisterAdmin(r)
	f.router = r
	return f
}

func multipartRequest(t *testing.T, method, path string, fields map[string]string, fileName string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (f *fixture) do(req *http.Request, caller id.UserID, role string) *httptest.ResponseRecorder {
	return testutil.DoRequest(f.router, testutil.WithAuth(req, caller, role))
}

func (f *fixture) upload(t *testing.T) *models.Document {
	t.Helper()
	rr := f.do(multipartRequest(t, http.MethodPost, "/api/claims/"+f.claim.ID.String()+"/documents",
		map[string]string{"document_type": "invoice"}, "repair.pdf", []byte("%PDF-1.7 invoice")), f.owner, "CUSTOMER")
	testutil.AssertStatus(t, rr, http.StatusCreated)
	return testutil.UnmarshalResponse[models.Document](t, rr)
}

func TestDocumentRoutes(t *testing.T) {
	t.Run("upload then fetch with a download link", func(t *testing.T) {
		f := newFixture(t)
		doc := f.upload(t)
		assert.Equal(t, models.DocumentType("INVOICE"), doc.Type)
		assert.Equal(t, "repair.pdf", doc.FileName)
		assert.Equal(t, 1, f.files.Len())

		rr := f.do(testutil.NewRequest(t, http.MethodGet, "/api/documents/"+doc.ID.String()), f.owner, "CUSTOMER")
		testutil.AssertStatusOK(t, rr)
		got := *testutil.UnmarshalResponse[map[string]any](t, rr)
		assert.True(t, strings.HasPrefix(got["download_url"].(string), "memory:///claims/"+f.claim.ID.String()))
		assert.Equal(t, float64(900), got["expires_in"])
		assert.NotContains(t, got, "file_key")
	})

	t.Run("upload without a file", func(t *testing.T) {
		f := newFixture(t)
		rr := f.do(multipartRequest(t, http.MethodPost, "/api/claims/"+f.claim.ID.String()+"/documents",
			map[string]string{"document_type": "photo"}, "", nil), f.owner, "CUSTOMER")

		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	t.Run("upload against another user's claim", func(t *testing.T) {
		f := newFixture(t)
		rr := f.do(multipartRequest(t, http.MethodPost, "/api/claims/"+f.claim.ID.String()+"/documents",
			map[string]string{"document_type": "photo"}, "car.jpg", []byte("jpg")), f.stranger, "CUSTOMER")

		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, string(dErrors.CodeOwnershipMismatch))
		assert.Zero(t, f.files.Len())
	})

	t.Run("claim documents are private to the claim owner", func(t *testing.T) {
		f := newFixture(t)
		f.upload(t)

		rr := f.do(testutil.NewRequest(t, http.MethodGet, "/api/claims/"+f.claim.ID.String()+"/documents"), f.stranger, "CUSTOMER")
		testutil.AssertStatus(t, rr, http.StatusForbidden)

		rr = f.do(testutil.NewRequest(t, http.MethodGet, "/api/claims/"+f.claim.ID.String()+"/documents"), f.admin, "ADMIN")
		testutil.AssertStatusOK(t, rr)
		assert.Len(t, *testutil.UnmarshalResponse[[]models.Document](t, rr), 1)
	})

	t.Run("replace keeps verification", func(t *testing.T) {
		f := newFixture(t)
		doc := f.upload(t)

		rr := f.do(testutil.NewRequest(t, http.MethodPut, "/api/admin/documents/"+doc.ID.String()+"/verify"), f.admin, "ADMIN")
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "verified", true)

		rr = f.do(multipartRequest(t, http.MethodPut, "/api/documents/"+doc.ID.String(), nil,
			"repair-v2.pdf", []byte("%PDF-1.7 corrected")), f.owner, "CUSTOMER")
		testutil.AssertStatusOK(t, rr)
		replaced := testutil.UnmarshalResponse[models.Document](t, rr)
		assert.True(t, replaced.Verified)
		assert.Equal(t, "repair-v2.pdf", replaced.FileName)
		assert.Equal(t, 1, f.files.Len())
	})

	t.Run("delete removes record and content", func(t *testing.T) {
		f := newFixture(t)
		doc := f.upload(t)

		rr := f.do(testutil.NewRequest(t, http.MethodDelete, "/api/documents/"+doc.ID.String()), f.stranger, "CUSTOMER")
		testutil.AssertStatus(t, rr, http.StatusForbidden)

		rr = f.do(testutil.NewRequest(t, http.MethodDelete, "/api/documents/"+doc.ID.String()), f.owner, "CUSTOMER")
		testutil.AssertStatus(t, rr, http.StatusNoContent)
		assert.Zero(t, f.files.Len())

		rr = f.do(testutil.NewRequest(t, http.MethodGet, "/api/documents/"+doc.ID.String()), f.owner, "CUSTOMER")
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})
}

func TestNotificationRoutes(t *testing.T) {
	f := newFixture(t)

	testutil.Given(t, "an admin notifies the claim owner", func(t *testing.T) {
		rr := f.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/admin/notifications", map[string]string{
			"user_id": f.owner.String(), "claim_id": f.claim.ID.String(), "message": "Please upload the repair invoice",
		}), f.admin, "ADMIN")
		testutil.AssertStatus(t, rr, http.StatusCreated)
	})

	var notificationID string
	testutil.When(t, "the owner lists notifications", func(t *testing.T) {
		rr := f.do(testutil.NewRequest(t, http.MethodGet, "/api/notifications"), f.owner, "CUSTOMER")
		testutil.AssertStatusOK(t, rr)
		list := *testutil.UnmarshalResponse[[]models.Notification](t, rr)
		require.Len(t, list, 1)
		assert.False(t, list[0].Read)
		notificationID = list[0].ID.String()
	})

	testutil.Then(t, "only the owner can mark it read", func(t *testing.T) {
		rr := f.do(testutil.NewRequest(t, http.MethodPut, "/api/notifications/"+notificationID+"/read"), f.stranger, "CUSTOMER")
		testutil.AssertStatus(t, rr, http.StatusNotFound)

		rr = f.do(testutil.NewRequest(t, http.MethodPut, "/api/notifications/"+notificationID+"/read"), f.owner, "CUSTOMER")
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "read", true)
	})

	t.Run("empty message", func(t *testing.T) {
		rr := f.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/admin/notifications", map[string]string{
			"user_id": f.owner.String(), "message": "  ",
		}), f.admin, "ADMIN")
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
}
