package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type AtomicFunc func(Registry) error

type Registry interface {
	Atomic(ctx context.Context, fn AtomicFunc) error
	GetChatsStore() *ChatsStorage
	GetMessagesStore() *MessagesStorage
	GetUsersStore() *UsersStorage
}

type DefaultRegistry struct {
	db    *sqlx.DB
	scope Scope
}

type Scope interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func NewRegistry(db *sqlx.DB) *DefaultRegistry {
	return &DefaultRegistry{
		db:    db,
		scope: db,
	}
}

func (r *DefaultRegistry) Atomic(ctx context.Context, fn AtomicFunc) (err error) {
	if _, nested := r.scope.(*sqlx.Tx); nested {
		return fn(r)
	}

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("rollback caused by error: \"%v\" failed: %v", err, rbErr)
			}
		} else {
			err = tx.Commit()
		}
	}()

	storage := DefaultRegistry{
		db:    r.db,
		scope: tx,
	}
	err = fn(&storage)
	return err
}

func (r *DefaultRegistry) GetChatsStore() *ChatsStorage {
	return NewChatsStorage(r.scope)
}

func (r *DefaultRegistry) GetMessagesStore() *MessagesStorage {
	return NewMessagesStorage(r.scope)
}

func (r *DefaultRegistry) GetUsersStore() *UsersStorage {
	return NewUsersStorage(r.scope)
}
