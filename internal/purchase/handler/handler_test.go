package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coverline/internal/coverage"
	instrumentmodels "coverline/internal/instrument/models"
	instrumentservice "coverline/internal/instrument/service"
	instrumentstore "coverline/internal/instrument/store"
	"coverline/internal/premium"
	"coverline/internal/purchase/service"
	"coverline/internal/purchase/store"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/testutil"
)

type knownUsers map[id.UserID]bool

func (k knownUsers) Exists(_ context.Context, userID id.UserID) (bool, error) {
	return k[userID], nil
}

type fixture struct {
	router      http.Handler
	instruments *instrumentservice.Service
	owner       id.UserID
	stranger    id.UserID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	owner, stranger := id.NewUserID(), id.NewUserID()
	users := knownUsers{owner: true, stranger: true}
	instruments := instrumentservice.New(instrumentstore.NewInMemoryStore(), users, premium.NewQuoter())
	purchases := service.New(store.NewInMemoryStore(), users, instruments)
	cov := coverage.New(instruments, purchases, coverage.NewMemoryTx(0), coverage.WithLogger(testutil.DiscardLogger()))

	r := chi.NewRouter()
	New(purchases, cov, testutil.DiscardLogger()).Register(r)
	return &fixture{router: r, instruments: instruments, owner: owner, stranger: stranger}
}

func (f *fixture) healthID(t *testing.T) string {
	t.Helper()
	inst, err := f.instruments.Create(context.Background(), f.owner, instrumentmodels.HealthAttributes{
		Age: 35, Members: 3, SumInsured: decimal.NewFromInt(500000),
	})
	require.NoError(t, err)
	return inst.ID.String()
}

func (f *fixture) send(t *testing.T, req *http.Request, caller id.UserID, role string) map[string]any {
	t.Helper()
	rr := testutil.DoRequest(f.router, testutil.WithTime(testutil.WithAuth(req, caller, role),
		time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)))
	if rr.Code >= 300 {
		return map[string]any{"status_code": float64(rr.Code), "error": testutil.UnmarshalErrorResponse(t, rr)["error"]}
	}
	out := *testutil.UnmarshalResponse[map[string]any](t, rr)
	out["status_code"] = float64(rr.Code)
	return out
}

func TestHandleCreate(t *testing.T) {
	t.Run("buys cover for a health policy", func(t *testing.T) {
		f := newFixture(t)
		healthID := f.healthID(t)

		got := f.send(t, testutil.NewJSONRequest(t, http.MethodPost, "/api/purchases", map[string]string{
			"health_id": healthID, "purchase_date": "2026-06-01", "expiry_date": "2027-05-31",
		}), f.owner, "CUSTOMER")

		assert.Equal(t, float64(http.StatusCreated), got["status_code"])
		assert.Equal(t, "health", got["instrument_kind"])
		assert.Equal(t, healthID, got["health_id"])
		assert.Equal(t, "ACTIVE", got["status"])
		assert.Equal(t, "2027-05-31", got["expiry_date"])
	})

	t.Run("two slots are rejected", func(t *testing.T) {
		f := newFixture(t)

		got := f.send(t, testutil.NewJSONRequest(t, http.MethodPost, "/api/purchases", map[string]string{
			"health_id": f.healthID(t), "bike_id": id.NewInstrumentID().String(),
		}), f.owner, "CUSTOMER")

		assert.Equal(t, float64(http.StatusBadRequest), got["status_code"])
		assert.Equal(t, string(dErrors.CodeValidation), got["error"])
	})

	t.Run("someone else's policy", func(t *testing.T) {
		f := newFixture(t)

		got := f.send(t, testutil.NewJSONRequest(t, http.MethodPost, "/api/purchases", map[string]string{
			"health_id": f.healthID(t),
		}), f.stranger, "CUSTOMER")

		assert.Equal(t, float64(http.StatusForbidden), got["status_code"])
	})
}

func TestPurchaseLifecycle(t *testing.T) {
	f := newFixture(t)
	created := f.send(t, testutil.NewJSONRequest(t, http.MethodPost, "/api/purchases", map[string]string{
		"health_id": f.healthID(t),
	}), f.owner, "CUSTOMER")
	require.Equal(t, float64(http.StatusCreated), created["status_code"])
	path := "/api/purchases/" + created["id"].(string)

	testutil.Given(t, "an active purchase", func(t *testing.T) {
		got := f.send(t, testutil.NewRequest(t, http.MethodGet, path), f.owner, "CUSTOMER")
		assert.Equal(t, "ACTIVE", got["status"])
		assert.Equal(t, "2027-06-15", got["expiry_date"])
	})

	testutil.When(t, "the expiry date moves before the purchase date", func(t *testing.T) {
		got := f.send(t, testutil.NewJSONRequest(t, http.MethodPut, path, map[string]string{
			"expiry_date": "2025-01-01",
		}), f.owner, "CUSTOMER")
		assert.Equal(t, float64(http.StatusBadRequest), got["status_code"])
	})

	testutil.When(t, "a stranger tries to cancel it", func(t *testing.T) {
		got := f.send(t, testutil.NewRequest(t, http.MethodPut, path+"/cancel"), f.stranger, "CUSTOMER")
		assert.Equal(t, float64(http.StatusForbidden), got["status_code"])
	})

	testutil.Then(t, "the owner cancels it and the policy follows", func(t *testing.T) {
		got := f.send(t, testutil.NewRequest(t, http.MethodPut, path+"/cancel"), f.owner, "CUSTOMER")
		require.Equal(t, float64(http.StatusOK), got["status_code"])
		purchase := got["purchase"].(map[string]any)
		instrument := got["instrument"].(map[string]any)
		assert.Equal(t, "CANCELLED", purchase["status"])
		assert.Equal(t, "CANCELLED", instrument["status"])
	})
}

func TestHandleList(t *testing.T) {
	f := newFixture(t)
	f.send(t, testutil.NewJSONRequest(t, http.MethodPost, "/api/purchases", map[string]string{
		"health_id": f.healthID(t),
	}), f.owner, "CUSTOMER")

	list := func(t *testing.T, query string, caller id.UserID, role string) (int, int) {
		t.Helper()
		req := testutil.WithTime(testutil.WithAuth(testutil.NewRequest(t, http.MethodGet, "/api/purchases"+query), caller, role),
			time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC))
		rr := testutil.DoRequest(f.router, req)
		if rr.Code != http.StatusOK {
			return rr.Code, 0
		}
		return rr.Code, len(*testutil.UnmarshalResponse[[]map[string]any](t, rr))
	}

	code, n := list(t, "?active=true", f.owner, "CUSTOMER")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, n)

	_, n = list(t, "?active=false", f.owner, "CUSTOMER")
	assert.Equal(t, 0, n)

	code, _ = list(t, "?active=maybe", f.owner, "CUSTOMER")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = list(t, "?user_id="+f.owner.String(), f.stranger, "CUSTOMER")
	assert.Equal(t, http.StatusForbidden, code)

	code, n = list(t, "?user_id="+f.owner.String(), id.NewUserID(), "ADMIN")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, n)

	code, n = list(t, "", f.owner, "CUSTOMER")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, n)
}
