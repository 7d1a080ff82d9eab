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
	ErrChatAlreadyExists = errors.New("chat with provided chat_id already exists")
	ErrChatNotFound      = errors.New("chat with provided chat_id does not exist")
	ErrEmptyMembers      = errors.New("members array can't be empty")
	ErrMemberNotFound    = errors.New("user is not a member of the chat")
)

const (
	ChatsPrimaryKey             = "chats_pkey"
	ChatMembersChatIdForeignKey = "chat_members_chat_id_fkey"
)

type ChatsStorage struct {
	db Scope
}

type chatRow struct {
	ChatID      string    `db:"chat_id"`
	ChatType    string    `db:"chat_type"`
	Name        string    `db:"name"`
	PhotoURL    string    `db:"photo_url"`
	Creator     string    `db:"creator"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	LastMessage []byte    `db:"last_message"`
}

type memberRow struct {
	ChatID string `db:"chat_id"`
	UserID string `db:"user_id"`
	Role   string `db:"role"`
}

func NewChatsStorage(db Scope) *ChatsStorage {
	return &ChatsStorage{
		db: db,
	}
}

func (r *chatRow) toModel() (*models.ChatWithMembers, error) {
	chat := &models.ChatWithMembers{
		Chat: models.Chat{
			ID:        r.ChatID,
			Type:      models.ChatType(r.ChatType),
			Name:      r.Name,
			PhotoURL:  r.PhotoURL,
			Creator:   r.Creator,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		Members: make([]models.ChatMember, 0),
	}
	if len(r.LastMessage) > 0 {
		last := &models.LastMessage{}
		if err := json.Unmarshal(r.LastMessage, last); err != nil {
			return nil, err
		}
		chat.LastMessage = last
	}
	return chat, nil
}

func (s *ChatsStorage) CreateChat(ctx context.Context, chat *models.Chat) error {
	query, args, err := sq.Insert("chats").
		Columns("chat_id", "chat_type", "name", "photo_url", "creator", "created_at", "updated_at").
		Values(chat.ID, string(chat.Type), chat.Name, chat.PhotoURL, chat.Creator, chat.CreatedAt.UTC(), chat.UpdatedAt.UTC()).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)

	if GetPgxConstraintName(err) == ChatsPrimaryKey {
		return ErrChatAlreadyExists
	} else {
		return err
	}
}

// AddChatMembers inserts members with the given role. Existing rows are
// moved to the new role, so accepting an invitation is an upsert.
func (s *ChatsStorage) AddChatMembers(ctx context.Context, chatId string, role models.MemberRole, members []string) error {
	if len(members) == 0 {
		return ErrEmptyMembers
	}

	builder := sq.Insert("chat_members").
		Columns("chat_id", "user_id", "role").
		Suffix("ON CONFLICT (chat_id, user_id) DO UPDATE SET role = EXCLUDED.role").
		PlaceholderFormat(sq.Dollar)

	for _, member := range members {
		builder = builder.Values(chatId, member, string(role))
	}

	query, args, err := builder.ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)
	if GetPgxConstraintName(err) == ChatMembersChatIdForeignKey {
		return ErrChatNotFound
	} else {
		return err
	}
}

func (s *ChatsStorage) SetMemberRole(ctx context.Context, chatId, userId string, role models.MemberRole) error {
	query, args, err := sq.Update("chat_members").
		Set("role", string(role)).
		Where(sq.Eq{"chat_id": chatId, "user_id": userId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectAffected(res, ErrMemberNotFound)
}

func (s *ChatsStorage) DeleteChatMembers(ctx context.Context, chatId string, members []string) error {
	if len(members) == 0 {
		return ErrEmptyMembers
	}

	query, args, err := sq.Delete("chat_members").
		Where(sq.Eq{"chat_id": chatId, "user_id": members}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *ChatsStorage) DeleteAllMembers(ctx context.Context, chatId string) error {
	query, args, err := sq.Delete("chat_members").
		Where(sq.Eq{"chat_id": chatId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *ChatsStorage) GetChat(ctx context.Context, chatId string) (*models.ChatWithMembers, error) {
	query, args, err := sq.Select("*").
		From("chats").
		Where(sq.Eq{"chat_id": chatId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	row := chatRow{}
	err = s.db.GetContext(ctx, &row, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	} else if err != nil {
		return nil, err
	}

	chat, err := row.toModel()
	if err != nil {
		return nil, err
	}

	members, err := s.getMembers(ctx, []string{chatId})
	if err != nil {
		return nil, err
	}
	chat.Members = append(chat.Members, members[chatId]...)
	chat.ApplyMembers()
	return chat, nil
}

func (s *ChatsStorage) getMembers(ctx context.Context, chatIds []string) (map[string][]models.ChatMember, error) {
	members := make(map[string][]models.ChatMember, len(chatIds))
	if len(chatIds) == 0 {
		return members, nil
	}

	query, args, err := sq.Select("chat_id", "user_id", "role").
		From("chat_members").
		Where(sq.Eq{"chat_id": chatIds}).
		OrderBy("chat_id", "user_id").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	rows := make([]memberRow, 0)
	if err = s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	for _, r := range rows {
		members[r.ChatID] = append(members[r.ChatID], models.ChatMember{
			UserID: r.UserID,
			Role:   models.MemberRole(r.Role),
		})
	}
	return members, nil
}

// FindPrivateChat looks a private chat up by its exact participant pair.
func (s *ChatsStorage) FindPrivateChat(ctx context.Context, a, b string) (string, error) {
	query, args, err := sq.Select("chat_id").
		From("chat_members").
		Join("chats USING(chat_id)").
		Where(sq.Eq{"chat_type": string(models.ChatPrivate)}).
		GroupBy("chat_id").
		Having("count(*) = 2 AND bool_and(user_id IN (?, ?))", a, b).
		OrderBy("chat_id").
		Limit(1).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return "", err
	}

	var chatId string
	err = s.db.GetContext(ctx, &chatId, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrChatNotFound
	}
	return chatId, err
}

// GetUserChats returns the chats userId participates in, most recently
// updated first. Invitations are not participation.
func (s *ChatsStorage) GetUserChats(ctx context.Context, userId string, onlyWithMessages bool) ([]models.Chat, error) {
	builder := sq.Select("chats.*").
		From("chats").
		Join("chat_members USING(chat_id)").
		Where(sq.Eq{
			"chat_members.user_id": userId,
			"chat_members.role":    []string{string(models.RoleMember), string(models.RoleAdmin)},
		}).
		OrderBy("chats.updated_at DESC").
		PlaceholderFormat(sq.Dollar)

	if onlyWithMessages {
		builder = builder.Where(sq.NotEq{"chats.last_message": nil})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows := make([]chatRow, 0)
	if err = s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ChatID
	}

	members, err := s.getMembers(ctx, ids)
	if err != nil {
		return nil, err
	}

	chats := make([]models.Chat, 0, len(rows))
	for _, r := range rows {
		chat, err := r.toModel()
		if err != nil {
			return nil, err
		}
		chat.Members = append(chat.Members, members[r.ChatID]...)
		chat.ApplyMembers()
		chats = append(chats, chat.Chat)
	}
	return chats, nil
}

// LockChat takes a row lock on the chat until the surrounding transaction
// ends, so writers of the same chat commit in the order they acquired it.
func (s *ChatsStorage) LockChat(ctx context.Context, chatId string) error {
	query, args, err := sq.Select("chat_id").
		From("chats").
		Where(sq.Eq{"chat_id": chatId}).
		Suffix("FOR UPDATE").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	var locked string
	err = s.db.GetContext(ctx, &locked, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrChatNotFound
	}
	return err
}

// TouchChat records the newest message of the chat. A touch older than the
// stored updated_at is ignored.
func (s *ChatsStorage) TouchChat(ctx context.Context, chatId string, last *models.LastMessage, at time.Time) error {
	body, err := json.Marshal(last)
	if err != nil {
		return err
	}

	query, args, err := sq.Update("chats").
		Set("last_message", string(body)).
		Set("updated_at", at.UTC()).
		Where(sq.And{
			sq.Eq{"chat_id": chatId},
			sq.LtOrEq{"updated_at": at.UTC()},
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *ChatsStorage) UpdateChatDetails(ctx context.Context, chatId string, details models.ChatDetails, at time.Time) error {
	query, args, err := sq.Update("chats").
		Set("name", details.Name).
		Set("photo_url", details.PhotoURL).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"chat_id": chatId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectAffected(res, ErrChatNotFound)
}

func (s *ChatsStorage) DeleteChat(ctx context.Context, chatId string) error {
	query, args, err := sq.Delete("chats").
		Where(sq.Eq{"chat_id": chatId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectAffected(res, ErrChatNotFound)
}

// MemberRole returns the role of userId in the chat, ErrMemberNotFound if
// the user has no row at all.
func (s *ChatsStorage) MemberRole(ctx context.Context, chatId string, userId string) (models.MemberRole, error) {
	query, args, err := sq.Select("role").
		From("chat_members").
		Where(sq.Eq{
			"chat_id": chatId,
			"user_id": userId,
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return "", err
	}

	var role string
	err = s.db.GetContext(ctx, &role, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrMemberNotFound
	}
	return models.MemberRole(role), err
}

func (s *ChatsStorage) UserIsMember(ctx context.Context, chatId string, userId string) (bool, error) {
	role, err := s.MemberRole(ctx, chatId, userId)
	if errors.Is(err, ErrMemberNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return role == models.RoleMember || role == models.RoleAdmin, nil
}

func expectAffected(res sql.Result, notFound error) error {
	count, err := res.RowsAffected()

	if err != nil {
		return err
	}

	if count == 0 {
		return notFound
	}

	return nil
}
