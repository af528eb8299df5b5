package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "coverline/pkg/domain"
	audit "coverline/pkg/platform/audit"
)

type recordingProducer struct {
	topic string
	key   []byte
	value []byte
	err   error
}

func (p *recordingProducer) Publish(_ context.Context, topic string, key, value []byte) error {
	p.topic, p.key, p.value = topic, key, value
	return p.err
}

func TestStore_Append(t *testing.T) {
	userID := id.NewUserID()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("publishes keyed payload with derived category", func(t *testing.T) {
		prod := &recordingProducer{}
		store := New(prod, "coverline.audit")

		err := store.Append(context.Background(), audit.Event{
			UserID:    userID,
			Action:    string(audit.EventClaimDecided),
			Decision:  "APPROVED",
			Timestamp: ts,
		})
		require.NoError(t, err)

		assert.Equal(t, "coverline.audit", prod.topic)
		assert.Equal(t, userID.String(), string(prod.key))

		var got payload
		require.NoError(t, json.Unmarshal(prod.value, &got))
		assert.Equal(t, string(audit.CategoryCompliance), got.Category)
		assert.Equal(t, "APPROVED", got.Decision)
		assert.Equal(t, "2025-06-01T10:00:00Z", got.Timestamp)
		assert.NotEmpty(t, got.ID)
	})

	t.Run("producer errors surface", func(t *testing.T) {
		prod := &recordingProducer{err: errors.New("broker down")}
		err := New(prod, "t").Append(context.Background(), audit.Event{Action: "x"})
		assert.Error(t, err)
		assert.Nil(t, prod.key)
	})
}
