package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/practice-sem-2/dm-service/internal/models"
)

var (
	ErrMessageAlreadyExists = errors.New("message with provided message_id already exists")
	ErrMessageNotFound      = errors.New("message does not exist")
)

const (
	MessagesPrimaryKey       = "messages_pkey"
	MessagesChatIdForeignKey = "messages_chat_id_fkey"
)

type MessagesStorage struct {
	db Scope
}

type messageRow struct {
	MessageID   string         `db:"message_id"`
	ChatID      string         `db:"chat_id"`
	FromUser    string         `db:"from_user"`
	SendingTime time.Time      `db:"sending_time"`
	Text        sql.NullString `db:"text"`
	Video       []byte         `db:"video"`
}

// MessageCursor marks the oldest message fetched so far. Messages sharing a
// sending time are ordered by id.
type MessageCursor struct {
	SendingTime time.Time
	MessageID   string
}

func NewMessagesStorage(db Scope) *MessagesStorage {
	return &MessagesStorage{
		db: db,
	}
}

func (r *messageRow) toModel() (models.Message, error) {
	msg := models.Message{
		ID:        r.MessageID,
		ChatID:    r.ChatID,
		From:      r.FromUser,
		Timestamp: r.SendingTime,
		Text:      r.Text.String,
	}
	if len(r.Video) > 0 {
		video := &models.Video{}
		if err := json.Unmarshal(r.Video, video); err != nil {
			return msg, err
		}
		msg.Video = video
	}
	return msg, nil
}

func (s *MessagesStorage) PutMessage(ctx context.Context, message *models.Message) error {
	var text interface{}
	if message.Text != "" {
		text = message.Text
	}

	var video interface{}
	if message.Video != nil {
		body, err := json.Marshal(message.Video)
		if err != nil {
			return err
		}
		video = string(body)
	}

	query, args, err := sq.Insert("messages").
		Columns("message_id", "chat_id", "from_user", "sending_time", "text", "video").
		Values(message.ID, message.ChatID, message.From, message.Timestamp.UTC(), text, video).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)

	if GetPgxConstraintName(err) == MessagesChatIdForeignKey {
		return ErrChatNotFound
	} else if GetPgxConstraintName(err) == MessagesPrimaryKey {
		return ErrMessageAlreadyExists
	} else if err != nil {
		return err
	}

	return nil
}

type SelectOptions struct {
	Limit   uint64
	OrderBy []string
}

func (s *MessagesStorage) SelectMessages(ctx context.Context, selector sq.Sqlizer, options ...SelectOptions) ([]models.Message, error) {
	option := SelectOptions{}
	if len(options) > 0 {
		option = options[0]
	}

	builder := sq.Select("message_id", "chat_id", "from_user", "sending_time", "text", "video").
		From("messages").
		Where(selector).
		PlaceholderFormat(sq.Dollar)

	if len(option.OrderBy) > 0 {
		builder = builder.OrderBy(option.OrderBy...)
	}

	if option.Limit > 0 {
		builder = builder.Limit(option.Limit)
	}

	query, args, err := builder.ToSql()

	if err != nil {
		return nil, err
	}

	rows := make([]messageRow, 0)
	if err = s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(rows))
	for _, r := range rows {
		msg, err := r.toModel()
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// GetLatestMessages returns the newest count messages ordered oldest first.
func (s *MessagesStorage) GetLatestMessages(ctx context.Context, chatId string, count uint64) ([]models.Message, error) {
	messages, err := s.SelectMessages(ctx, sq.Eq{"chat_id": chatId}, SelectOptions{
		Limit:   count,
		OrderBy: []string{"sending_time DESC", "message_id DESC"},
	})
	if err != nil {
		return nil, err
	}
	reverse(messages)
	return messages, nil
}

// GetMessagesBefore returns up to count messages strictly older than the
// cursor, ordered oldest first.
func (s *MessagesStorage) GetMessagesBefore(ctx context.Context, chatId string, cursor MessageCursor, count uint64) ([]models.Message, error) {
	selector := sq.And{
		sq.Eq{"chat_id": chatId},
		sq.Or{
			sq.Lt{"sending_time": cursor.SendingTime.UTC()},
			sq.And{
				sq.Eq{"sending_time": cursor.SendingTime.UTC()},
				sq.Lt{"message_id": cursor.MessageID},
			},
		},
	}
	messages, err := s.SelectMessages(ctx, selector, SelectOptions{
		Limit:   count,
		OrderBy: []string{"sending_time DESC", "message_id DESC"},
	})
	if err != nil {
		return nil, err
	}
	reverse(messages)
	return messages, nil
}

// GetMessagesAfter returns messages strictly newer than after, oldest first.
func (s *MessagesStorage) GetMessagesAfter(ctx context.Context, chatId string, after time.Time) ([]models.Message, error) {
	selector := sq.And{
		sq.Eq{"chat_id": chatId},
		sq.Gt{"sending_time": after.UTC()},
	}
	return s.SelectMessages(ctx, selector, SelectOptions{
		OrderBy: []string{"sending_time ASC", "message_id ASC"},
	})
}

func (s *MessagesStorage) DeleteChatMessages(ctx context.Context, chatId string) (int64, error) {
	query, args, err := sq.Delete("messages").
		Where(sq.Eq{"chat_id": chatId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)

	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
