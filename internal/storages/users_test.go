package storage

import (
	"context"
	"testing"
	"time"

	"github.com/practice-sem-2/dm-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type UsersStorageTestSuite struct {
	PostgresTestSuite
}

func TestUsersStorageTestSuite(t *testing.T) {
	suite.Run(t, &UsersStorageTestSuite{})
}

func (s *UsersStorageTestSuite) Test_GetUser() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewUsersStorage(s.db)
	profile := &models.Profile{UID: alice, DisplayName: "Alice", PhotoURL: "https://example.com/a.png"}
	require.NoError(s.T(), store.PutUser(ctx, profile))

	got, err := store.GetUser(ctx, alice)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), profile, got)

	_, err = store.GetUser(ctx, bob)
	assert.ErrorIs(s.T(), err, ErrUserNotFound)
}

func (s *UsersStorageTestSuite) Test_IgnoreList() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewUsersStorage(s.db)
	require.NoError(s.T(), store.PutUser(ctx, &models.Profile{UID: alice}))

	require.NoError(s.T(), store.AddToIgnoreList(ctx, alice, bob))
	require.NoError(s.T(), store.AddToIgnoreList(ctx, alice, bob), "adding twice is a no-op")
	require.NoError(s.T(), store.AddToIgnoreList(ctx, alice, carol))

	uids, err := store.GetIgnoreList(ctx, alice)
	assert.NoError(s.T(), err)
	assert.ElementsMatch(s.T(), []string{bob, carol}, uids)

	require.NoError(s.T(), store.RemoveFromIgnoreList(ctx, alice, bob))
	uids, err = store.GetIgnoreList(ctx, alice)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), []string{carol}, uids)
}
