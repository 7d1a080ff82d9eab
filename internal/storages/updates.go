package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	"github.com/practice-sem-2/dm-service/internal/models"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrMalformedUpdate = errors.New("malformed update")

type UpdatesStorage struct {
	cfg      *UpdatesStoreConfig
	producer sarama.SyncProducer
}

type UpdatesStoreConfig struct {
	UpdatesTopic string
}

func NewUpdatesStore(p sarama.SyncProducer, cfg *UpdatesStoreConfig) *UpdatesStorage {
	return &UpdatesStorage{
		producer: p,
		cfg:      cfg,
	}
}

func (s *UpdatesStorage) putUpdate(topic, key string, body []byte) error {
	_, _, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(body),
	})

	return err
}

// Publish sends the update to the updates topic keyed by chat id, so all
// updates of one chat land in one partition in order.
func (s *UpdatesStorage) Publish(update *models.Update) error {
	body, err := EncodeUpdate(update)
	if err != nil {
		return err
	}
	return s.putUpdate(s.cfg.UpdatesTopic, update.ChatID, body)
}

func updateToProtobuf(update *models.Update) (*structpb.Struct, error) {
	audience := make([]interface{}, len(update.Audience))
	for i, uid := range update.Audience {
		audience[i] = uid
	}

	return structpb.NewStruct(map[string]interface{}{
		"kind":       string(update.Kind),
		"chat_id":    update.ChatID,
		"message_id": update.MessageID,
		"from_user":  update.FromUser,
		"audience":   audience,
		"timestamp":  update.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func EncodeUpdate(update *models.Update) ([]byte, error) {
	msg, err := updateToProtobuf(update)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(msg)
}

func DecodeUpdate(body []byte) (*models.Update, error) {
	msg := &structpb.Struct{}
	if err := proto.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}

	fields := msg.GetFields()
	update := &models.Update{
		Kind:      models.UpdateKind(fields["kind"].GetStringValue()),
		ChatID:    fields["chat_id"].GetStringValue(),
		MessageID: fields["message_id"].GetStringValue(),
		FromUser:  fields["from_user"].GetStringValue(),
	}
	if update.Kind == "" || update.ChatID == "" {
		return nil, fmt.Errorf("%w: kind and chat_id are required", ErrMalformedUpdate)
	}

	for _, v := range fields["audience"].GetListValue().GetValues() {
		update.Audience = append(update.Audience, v.GetStringValue())
	}

	if ts := fields["timestamp"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
		}
		update.Timestamp = t
	}
	return update, nil
}
