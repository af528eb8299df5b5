package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapAndHasCode(t *testing.T) {
	t.Run("wrap nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("code survives fmt wrapping", func(t *testing.T) {
		base := New(CodeDuplicateClaim, "claim already exists")
		wrapped := fmt.Errorf("raise claim: %w", base)

		assert.True(t, HasCode(wrapped, CodeDuplicateClaim))
		assert.False(t, HasCode(wrapped, CodeNotFound))
		assert.Equal(t, CodeDuplicateClaim, CodeOf(wrapped))
	})

	t.Run("cause stays reachable through errors.Is", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeInternal, "failed to load claim")

		require.ErrorIs(t, err, cause)
		assert.Equal(t, "failed to load claim: connection reset", err.Error())
	})

	t.Run("untyped errors map to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}
