package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"coverline/internal/app"
	"coverline/internal/platform/config"
	"coverline/pkg/testutil"
)

func baseConfig() config.Server {
	return config.Server{
		Addr:                ":0",
		JWTSigningKey:       "integration-signing-key",
		JWTTTL:              time.Hour,
		JWTIssuer:           "coverline",
		Documents:           config.DocumentConfig{PresignTTL: 15 * time.Minute},
		QuoteCacheTTL:       time.Minute,
		PendingCancelPolicy: config.PendingCancelMark,
		TxTimeout:           5 * time.Second,
		BootstrapAdmin: config.BootstrapAdmin{
			Name:     "Claims Desk",
			Email:    deskEmail,
			Password: testPassword,
		},
	}
}

const (
	deskEmail    = "desk@example.com"
	testPassword = "correct-horse-battery"
)

// client drives the assembled router over httptest.
type client struct {
	t      *testing.T
	router http.Handler
}

func newClient(t *testing.T, cfg config.Server) *client {
	t.Helper()
	application, err := app.Build(context.Background(), cfg, testutil.DiscardLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(application.Close)
	return &client{t: t, router: application.Router}
}

func (c *client) send(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return testutil.DoRequest(c.router, req)
}

func (c *client) json(method, path, token string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	if body == nil {
		return c.send(testutil.NewRequest(c.t, method, path), token)
	}
	return c.send(testutil.NewJSONRequest(c.t, method, path, body), token)
}

func (c *client) upload(method, path, token string, fields map[string]string, fileName string, content []byte) *httptest.ResponseRecorder {
	c.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(c.t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(c.t, err)
	_, err = part.Write(content)
	require.NoError(c.t, err)
	require.NoError(c.t, mw.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req, token)
}

// signUp registers a customer and returns its access token and user id.
func (c *client) signUp(name, email string) (string, string) {
	c.t.Helper()
	c.register(name, email, "CUSTOMER")
	return c.login(email)
}

// register creates an account without logging in and returns its user id.
func (c *client) register(name, email, role string) string {
	c.t.Helper()
	rr := c.json(http.MethodPost, "/auth/register", "", map[string]string{
		"name": name, "email": email, "password": testPassword, "role": role,
	})
	require.Equal(c.t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[struct {
		ID string `json:"id"`
	}](c.t, rr).ID
}

// login returns the access token and user id of an active account.
func (c *client) login(email string) (string, string) {
	c.t.Helper()
	rr := c.json(http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": testPassword,
	})
	require.Equal(c.t, http.StatusOK, rr.Code, rr.Body.String())
	var login struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(c.t, json.Unmarshal(rr.Body.Bytes(), &login))
	return login.AccessToken, login.User.ID
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}
