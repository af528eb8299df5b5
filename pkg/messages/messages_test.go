package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	t.Run("known key fills arguments", func(t *testing.T) {
		assert.Equal(t, "Claim not found with id: abc", Render(ClaimNotFound, "abc"))
	})

	t.Run("unknown key falls back to the key", func(t *testing.T) {
		assert.Equal(t, "no.such.key", Render("no.such.key"))
	})

	t.Run("every key has an english entry", func(t *testing.T) {
		for key := range english {
			assert.NotEqual(t, key, Render(key), key)
		}
	})
}
