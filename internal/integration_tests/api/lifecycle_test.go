package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coverline/pkg/testutil"
)

func TestClaimLifecycle_InMemory(t *testing.T) {
	runClaimLifecycle(t, newClient(t, baseConfig()))
}

// runClaimLifecycle drives one customer from quote to a decided claim and a
// cancelled policy through the public HTTP surface.
func runClaimLifecycle(t *testing.T, c *client) {
	customer, customerID := c.signUp("Asha Rao", "asha@example.com")
	admin, _ := c.login(deskEmail)
	bike := map[string]any{
		"cc": 150, "age_in_months": 12, "manufacturer": "Honda", "registration_number": "KA01AB1234",
	}

	var instrumentID, purchaseID, claimID string

	testutil.Given(t, "a confirmed bike policy", func(t *testing.T) {
		rr := c.json(http.MethodPost, "/api/quotes/bike", customer, bike)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = c.json(http.MethodPost, "/api/instruments/bike", customer, bike)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		created := decode[map[string]any](t, rr)
		instrumentID = created["id"].(string)
		assert.Equal(t, "PENDING", created["status"])
		assert.Equal(t, customerID, created["user_id"])

		rr = c.json(http.MethodPost, "/api/instruments/bike/"+instrumentID+"/confirm", customer, nil)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		confirmed := decode[map[string]map[string]any](t, rr)
		purchaseID = confirmed["purchase"]["id"].(string)
		assert.Equal(t, "CONFIRMED", confirmed["instrument"]["status"])
		assert.Equal(t, purchaseID, confirmed["instrument"]["purchase_id"])
		assert.Equal(t, instrumentID, confirmed["purchase"]["bike_id"])

		rr = c.json(http.MethodGet, "/api/purchases/claimable", customer, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decode[[]map[string]any](t, rr), 1)
	})

	testutil.When(t, "the customer raises a claim with evidence", func(t *testing.T) {
		rr := c.json(http.MethodPost, "/api/claims", customer, map[string]string{"purchase_id": purchaseID})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		claimID = decode[map[string]any](t, rr)["id"].(string)

		rr = c.json(http.MethodPost, "/api/claims", customer, map[string]string{"purchase_id": purchaseID})
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "duplicate_claim")

		rr = c.json(http.MethodGet, "/api/purchases/claimable", customer, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, decode[[]map[string]any](t, rr))

		rr = c.upload(http.MethodPost, "/api/claims/"+claimID+"/documents", customer,
			map[string]string{"document_type": "invoice"}, "repair.pdf", []byte("%PDF-1.7 repair invoice"))
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		documentID := decode[map[string]any](t, rr)["id"].(string)

		rr = c.json(http.MethodGet, "/api/documents/"+documentID, customer, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.NotEmpty(t, decode[map[string]any](t, rr)["download_url"])
	})

	testutil.Then(t, "only an admin can decide it and the customer is told", func(t *testing.T) {
		path := "/api/admin/claims/" + claimID + "/status"
		rr := c.json(http.MethodPut, path, customer, map[string]string{"status": "APPROVED"})
		testutil.AssertStatus(t, rr, http.StatusForbidden)

		rr = c.json(http.MethodGet, "/api/admin/claims/pending/count", admin, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, float64(1), decode[map[string]any](t, rr)["count"])

		rr = c.json(http.MethodPut, path, admin, map[string]string{"status": "APPROVED"})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, "APPROVED", decode[map[string]any](t, rr)["status"])

		rr = c.json(http.MethodPut, path, admin, map[string]string{"status": "REJECTED"})
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "terminal_state")

		rr = c.json(http.MethodGet, "/api/notifications", customer, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		notes := decode[[]map[string]any](t, rr)
		require.Len(t, notes, 1)
		assert.Equal(t, claimID, notes[0]["claim_id"])

		rr = c.json(http.MethodDelete, "/api/claims/"+claimID, customer, nil)
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "not_pending")
	})

	t.Run("cancelling the purchase cancels the policy", func(t *testing.T) {
		rr := c.json(http.MethodPut, "/api/purchases/"+purchaseID+"/cancel", customer, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		res := decode[map[string]map[string]any](t, rr)
		assert.Equal(t, "CANCELLED", res["purchase"]["status"])
		assert.Equal(t, "CANCELLED", res["instrument"]["status"])

		rr = c.json(http.MethodGet, "/api/purchases?active=true", customer, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, decode[[]map[string]any](t, rr))
	})
}

func TestAuthBoundary(t *testing.T) {
	c := newClient(t, baseConfig())

	rr := c.json(http.MethodGet, "/api/claims", "", nil)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	rr = c.json(http.MethodGet, "/api/claims", "not-a-jwt", nil)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	rr = c.json(http.MethodGet, "/health", "", nil)
	testutil.AssertStatusOK(t, rr)

	rr = c.json(http.MethodPost, "/auth/login", "", map[string]string{"email": "nobody@example.com", "password": "whatever-pass"})
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}
