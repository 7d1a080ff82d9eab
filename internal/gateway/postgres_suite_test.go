package gateway

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/practice-sem-2/dm-service/internal/feed"
	storage "github.com/practice-sem-2/dm-service/internal/storages"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type switchableIdentity struct {
	mu  sync.Mutex
	uid string
}

func (i *switchableIdentity) CurrentUID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.uid
}

func (i *switchableIdentity) set(uid string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.uid = uid
}

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type ServiceTestSuite struct {
	suite.Suite
	db       *sqlx.DB
	m        *migrate.Migrate
	identity *switchableIdentity
	hub      *feed.Hub
	service  *Service
}

func (s *ServiceTestSuite) SetupSuite() {
	var err error
	viper.AutomaticEnv()
	dbDsn := viper.GetString("DB_DSN")
	migrationsDsn := viper.GetString("MIGRATIONS_DSN")
	migrationsDir := viper.GetString("MIGRATIONS_DIR")

	if dbDsn == "" || migrationsDsn == "" || migrationsDir == "" {
		s.T().Skip("DB_DSN, MIGRATIONS_DSN and MIGRATIONS_DIR must be defined to run postgres tests")
	}

	s.db, err = sqlx.Connect("pgx", dbDsn)
	require.NoError(s.T(), err, "failed to connect to database")

	s.m, err = migrate.New(migrationsDir, migrationsDsn)
	require.NoError(s.T(), err, "failed to open migrations")

	err = s.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		err = nil
	}
	require.NoError(s.T(), err, "failed to migrate database")
}

func (s *ServiceTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s.identity = &switchableIdentity{uid: alice}
	s.hub = feed.NewHub(logger)
	s.service = NewService(
		storage.NewRegistry(s.db),
		s.hub,
		s.hub,
		s.identity,
		NewProfileCache(),
		validator.New(),
		logger,
	)
}

func (s *ServiceTestSuite) TearDownSuite() {
	if s.m != nil {
		_ = s.m.Down()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *ServiceTestSuite) TearDownTest() {
	_, err := s.db.Exec("TRUNCATE messages, chat_members, chats, ignore_list, users")
	require.NoError(s.T(), err, "can't teardown test")
}
