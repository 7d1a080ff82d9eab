package storage

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/practice-sem-2/dm-service/internal/models"
)

var ErrUserNotFound = errors.New("user with provided user_id does not exist")

type UsersStorage struct {
	db Scope
}

func NewUsersStorage(db Scope) *UsersStorage {
	return &UsersStorage{
		db: db,
	}
}

func (s *UsersStorage) PutUser(ctx context.Context, profile *models.Profile) error {
	query, args, err := sq.Insert("users").
		Columns("user_id", "display_name", "photo_url").
		Values(profile.UID, profile.DisplayName, profile.PhotoURL).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name, photo_url = EXCLUDED.photo_url").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *UsersStorage) GetUser(ctx context.Context, userId string) (*models.Profile, error) {
	query, args, err := sq.Select("user_id", "display_name", "photo_url").
		From("users").
		Where(sq.Eq{"user_id": userId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	profile := models.Profile{}
	err = s.db.GetContext(ctx, &profile, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *UsersStorage) GetIgnoreList(ctx context.Context, ownerId string) ([]string, error) {
	query, args, err := sq.Select("blocked_id").
		From("ignore_list").
		Where(sq.Eq{"owner_id": ownerId}).
		OrderBy("blocked_id").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	uids := make([]string, 0)
	err = s.db.SelectContext(ctx, &uids, query, args...)
	return uids, err
}

func (s *UsersStorage) AddToIgnoreList(ctx context.Context, ownerId string, blockedId string) error {
	query, args, err := sq.Insert("ignore_list").
		Columns("owner_id", "blocked_id").
		Values(ownerId, blockedId).
		Suffix("ON CONFLICT DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)
	if GetPgxConstraintName(err) == "ignore_list_owner_id_fkey" {
		return ErrUserNotFound
	}
	return err
}

func (s *UsersStorage) RemoveFromIgnoreList(ctx context.Context, ownerId string, blockedId string) error {
	query, args, err := sq.Delete("ignore_list").
		Where(sq.Eq{"owner_id": ownerId, "blocked_id": blockedId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}
