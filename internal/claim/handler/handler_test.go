package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"coverline/internal/claim/handler/mocks"
	"coverline/internal/claim/models"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type ClaimHandlerSuite struct {
	suite.Suite
	service  *mocks.MockService
	router   http.Handler
	owner    id.UserID
	stranger id.UserID
	admin    id.UserID
}

func TestClaimHandlerSuite(t *testing.T) {
	suite.Run(t, new(ClaimHandlerSuite))
}

func (s *ClaimHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.owner, s.stranger, s.admin = id.NewUserID(), id.NewUserID(), id.NewUserID()

	r := chi.NewRouter()
	h := New(s.service, testutil.DiscardLogger())
	h.Register(r)
	h.RegisterAdmin(r)
	s.router = r
}

func (s *ClaimHandlerSuite) do(req *http.Request, caller id.UserID, role string) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.WithAuth(req, caller, role))
}

func (s *ClaimHandlerSuite) pendingClaim() *models.Claim {
	return models.New(id.NewClaimID(), s.owner, id.NewPurchaseID(), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func (s *ClaimHandlerSuite) TestRaise() {
	s.Run("creates a pending claim for the caller", func() {
		claim := s.pendingClaim()
		s.service.EXPECT().Raise(gomock.Any(), s.owner, claim.PurchaseID).Return(claim, nil)

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/claims",
			map[string]string{"purchase_id": claim.PurchaseID.String()}), s.owner, "CUSTOMER")

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		got := testutil.UnmarshalResponse[models.Claim](s.T(), rr)
		s.Equal(claim.ID, got.ID)
		s.Equal(models.StatusPending, got.Status)
	})

	s.Run("purchase id is required", func() {
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/claims",
			map[string]string{}), s.owner, "CUSTOMER")

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("second claim on a purchase conflicts", func() {
		purchaseID := id.NewPurchaseID()
		s.service.EXPECT().Raise(gomock.Any(), s.owner, purchaseID).
			Return(nil, dErrors.New(dErrors.CodeDuplicateClaim, "claim already exists"))

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/claims",
			map[string]string{"purchase_id": purchaseID.String()}), s.owner, "CUSTOMER")

		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeDuplicateClaim))
	})

	s.Run("inactive purchase is unprocessable", func() {
		purchaseID := id.NewPurchaseID()
		s.service.EXPECT().Raise(gomock.Any(), s.owner, purchaseID).
			Return(nil, dErrors.New(dErrors.CodePolicyNotActive, "purchase is not active"))

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/claims",
			map[string]string{"purchase_id": purchaseID.String()}), s.owner, "CUSTOMER")

		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, string(dErrors.CodePolicyNotActive))
	})
}

func (s *ClaimHandlerSuite) TestGetAndWithdraw() {
	s.Run("stranger cannot read another user's claim", func() {
		claim := s.pendingClaim()
		s.service.EXPECT().GetByID(gomock.Any(), claim.ID).Return(claim, nil)

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/api/claims/"+claim.ID.String()), s.stranger, "CUSTOMER")

		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, string(dErrors.CodeForbidden))
	})

	s.Run("admin reads any claim", func() {
		claim := s.pendingClaim()
		s.service.EXPECT().GetByID(gomock.Any(), claim.ID).Return(claim, nil)

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/api/claims/"+claim.ID.String()), s.admin, "ADMIN")

		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "status", "PENDING")
	})

	s.Run("owner withdraws a pending claim", func() {
		claim := s.pendingClaim()
		s.service.EXPECT().GetByID(gomock.Any(), claim.ID).Return(claim, nil)
		s.service.EXPECT().Withdraw(gomock.Any(), claim.ID).Return(nil)

		rr := s.do(testutil.NewRequest(s.T(), http.MethodDelete, "/api/claims/"+claim.ID.String()), s.owner, "CUSTOMER")

		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	})

	s.Run("decided claim cannot be withdrawn", func() {
		claim := s.pendingClaim()
		claim.Status = models.StatusApproved
		s.service.EXPECT().GetByID(gomock.Any(), claim.ID).Return(claim, nil)
		s.service.EXPECT().Withdraw(gomock.Any(), claim.ID).
			Return(dErrors.New(dErrors.CodeNotPending, "claim is not pending"))

		rr := s.do(testutil.NewRequest(s.T(), http.MethodDelete, "/api/claims/"+claim.ID.String()), s.owner, "CUSTOMER")

		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeNotPending))
	})

	s.Run("malformed id", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/api/claims/not-a-uuid"), s.owner, "CUSTOMER")

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *ClaimHandlerSuite) TestList() {
	s.Run("defaults to the caller", func() {
		s.service.EXPECT().ListByUser(gomock.Any(), s.owner).Return([]*models.Claim{s.pendingClaim()}, nil)

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/api/claims"), s.owner, "CUSTOMER")

		testutil.AssertStatusOK(s.T(), rr)
		s.Len(*testutil.UnmarshalResponse[[]models.Claim](s.T(), rr), 1)
	})

	s.Run("customers cannot list for another user", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/api/claims?user_id="+s.owner.String()), s.stranger, "CUSTOMER")

		testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
	})

	s.Run("purchase filter hides other users' claims", func() {
		mine := s.pendingClaim()
		theirs := models.New(id.NewClaimID(), s.stranger, mine.PurchaseID, mine.CreatedAt)
		s.service.EXPECT().ListByPurchase(gomock.Any(), mine.PurchaseID).Return([]*models.Claim{mine, theirs}, nil)

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/api/claims?purchase_id="+mine.PurchaseID.String()), s.owner, "CUSTOMER")

		testutil.AssertStatusOK(s.T(), rr)
		got := *testutil.UnmarshalResponse[[]models.Claim](s.T(), rr)
		s.Require().Len(got, 1)
		s.Equal(mine.ID, got[0].ID)
	})
}

func (s *ClaimHandlerSuite) TestAdminRoutes() {
	s.Run("list by status", func() {
		s.service.EXPECT().ListByStatus(gomock.Any(), "pending").Return([]*models.Claim{s.pendingClaim()}, nil)

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/api/admin/claims?status=pending"), s.admin, "ADMIN")

		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("list all", func() {
		s.service.EXPECT().ListAll(gomock.Any()).Return(nil, nil)

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/api/admin/claims"), s.admin, "ADMIN")

		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("pending count", func() {
		s.service.EXPECT().CountPending(gomock.Any()).Return(3, nil)

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/api/admin/claims/pending/count"), s.admin, "ADMIN")

		testutil.AssertStatusOK(s.T(), rr)
		s.Equal(3, testutil.UnmarshalResponse[CountResponse](s.T(), rr).Count)
	})

	s.Run("approve", func() {
		claim := s.pendingClaim()
		approved := *claim
		approved.Status = models.StatusApproved
		s.service.EXPECT().UpdateStatus(gomock.Any(), claim.ID, "APPROVED").Return(&approved, nil)

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPut, "/api/admin/claims/"+claim.ID.String()+"/status",
			map[string]string{"status": "approved"}), s.admin, "ADMIN")

		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "status", "APPROVED")
	})

	s.Run("decided claim stays decided", func() {
		claimID := id.NewClaimID()
		s.service.EXPECT().UpdateStatus(gomock.Any(), claimID, "PENDING").
			Return(nil, dErrors.New(dErrors.CodeTerminalState, "claim status is final"))

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPut, "/api/admin/claims/"+claimID.String()+"/status",
			map[string]string{"status": "pending"}), s.admin, "ADMIN")

		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeTerminalState))
	})

	s.Run("empty status", func() {
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPut, "/api/admin/claims/"+id.NewClaimID().String()+"/status",
			map[string]string{"status": " "}), s.admin, "ADMIN")

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
}
