package storage

import (
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdatesStorage_Publish(t *testing.T) {
	update := &models.Update{
		UpdateMeta: models.UpdateMeta{
			Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 1500, time.UTC),
			Audience:  []string{alice, bob},
		},
		Kind:      models.UpdateMessageSent,
		ChatID:    chatId,
		MessageID: messageId,
		FromUser:  alice,
	}

	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		decoded, err := DecodeUpdate(val)
		require.NoError(t, err)
		assert.Equal(t, update, decoded)
		return nil
	})

	store := NewUpdatesStore(producer, &UpdatesStoreConfig{UpdatesTopic: "updates"})
	assert.NoError(t, store.Publish(update), "update should be pushed without error")
	assert.NoError(t, producer.Close())
}

func TestDecodeUpdate_Malformed(t *testing.T) {
	_, err := DecodeUpdate([]byte("definitely not protobuf \xff\xff"))
	assert.ErrorIs(t, err, ErrMalformedUpdate)

	body, err := EncodeUpdate(&models.Update{Kind: models.UpdateChatChanged})
	require.NoError(t, err)
	_, err = DecodeUpdate(body)
	assert.ErrorIs(t, err, ErrMalformedUpdate, "chat id is required")
}
