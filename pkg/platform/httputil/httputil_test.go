package httputil

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/testutil"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := testutil.UnmarshalErrorResponse(t, w)
		assert.Equal(t, "internal_error", body["error"])
		_, ok := body["error_description"]
		assert.False(t, ok)
	})

	t.Run("bad request includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid input"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := testutil.UnmarshalErrorResponse(t, w)
		assert.Equal(t, "bad_request", body["error"])
		assert.Equal(t, "invalid input", body["error_description"])
	})

	t.Run("untyped error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, io.ErrUnexpectedEOF)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestStatusFor_LifecycleCodes(t *testing.T) {
	cases := map[dErrors.Code]int{
		dErrors.CodeNotFound:           http.StatusNotFound,
		dErrors.CodeOwnershipMismatch:  http.StatusForbidden,
		dErrors.CodePolicyNotActive:    http.StatusUnprocessableEntity,
		dErrors.CodeDuplicateClaim:     http.StatusConflict,
		dErrors.CodeTerminalState:      http.StatusConflict,
		dErrors.CodeNotPending:         http.StatusConflict,
		dErrors.CodeInvalidStatus:      http.StatusBadRequest,
		dErrors.CodeInvariantViolation: http.StatusUnprocessableEntity,
	}
	for code, status := range cases {
		assert.Equal(t, status, StatusFor(code), string(code))
	}
}

type sampleRequest struct {
	Name string `json:"name"`
}

func (r *sampleRequest) Normalize() { r.Name = strings.TrimSpace(r.Name) }

func (r *sampleRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("normalizes then validates", func(t *testing.T) {
		req := testutil.NewRequestWithBody(t, http.MethodPost, "/", `{"name":"  alice  "}`)
		w := httptest.NewRecorder()

		got, ok := DecodeAndPrepare[sampleRequest](w, req, logger, req.Context(), "req-1")
		require.True(t, ok)
		assert.Equal(t, "alice", got.Name)
	})

	t.Run("validation failure writes error", func(t *testing.T) {
		req := testutil.NewRequestWithBody(t, http.MethodPost, "/", `{"name":"   "}`)
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[sampleRequest](w, req, logger, req.Context(), "req-1")
		require.False(t, ok)
		testutil.AssertStatusAndError(t, w, http.StatusBadRequest, "validation_error")
	})

	t.Run("malformed json is bad request", func(t *testing.T) {
		req := testutil.NewRequestWithBody(t, http.MethodPost, "/", `{`)
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[sampleRequest](w, req, logger, req.Context(), "req-1")
		require.False(t, ok)
		testutil.AssertStatusAndError(t, w, http.StatusBadRequest, "bad_request")
	})
}
