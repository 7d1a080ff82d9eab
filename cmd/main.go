package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shopify/sarama"
	"github.com/go-playground/validator/v10"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/practice-sem-2/dm-service/internal/auth"
	"github.com/practice-sem-2/dm-service/internal/bridge"
	"github.com/practice-sem-2/dm-service/internal/config"
	"github.com/practice-sem-2/dm-service/internal/controllers"
	"github.com/practice-sem-2/dm-service/internal/deeplink"
	"github.com/practice-sem-2/dm-service/internal/feed"
	"github.com/practice-sem-2/dm-service/internal/gateway"
	"github.com/practice-sem-2/dm-service/internal/localstore"
	"github.com/practice-sem-2/dm-service/internal/readmarks"
	"github.com/practice-sem-2/dm-service/internal/settings"
	"github.com/practice-sem-2/dm-service/internal/shell"
	"github.com/practice-sem-2/dm-service/internal/state"
	storage "github.com/practice-sem-2/dm-service/internal/storages"
	"github.com/practice-sem-2/dm-service/internal/unread"
	"github.com/practice-sem-2/dm-service/internal/video"
	"github.com/sirupsen/logrus"
)

func initLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
		logger.
			WithField("log_level", level).
			Warning("specified invalid log level")
	} else {
		logger.SetLevel(logLevel)
		logger.
			WithField("log_level", level).
			Infof("specified %s log level", logLevel.String())
	}

	return logger
}

func initDB(dsn string, logger *logrus.Logger) *sqlx.DB {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		logger.Fatalf("can't connect to database: %s", err.Error())
	}

	if err = db.Ping(); err != nil {
		logger.Fatalf("database ping failed: %s", err.Error())
	}

	logger.Info("successfully connected to database")
	return db
}

func runMigrations(cfg *config.Config, logger *logrus.Logger) {
	if cfg.MigrationsDsn == "" {
		logger.Warning("MIGRATIONS_DSN is not set, skipping migrations")
		return
	}

	m, err := migrate.New(cfg.MigrationsDir, cfg.MigrationsDsn)
	if err != nil {
		logger.Fatalf("can't open migrations: %s", err.Error())
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("database schema is up to date")
		return
	}
	if err != nil {
		logger.Fatalf("can't apply migrations: %s", err.Error())
	}
	logger.Info("migrations applied")
}

func kafkaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Timeout = 10 * time.Second
	cfg.Producer.Return.Successes = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Offsets.AutoCommit.Enable = false
	return cfg
}

// initUpdates picks the live update transport. With brokers configured
// updates go through Kafka and come back through the consumer, otherwise the
// hub delivers them in process.
func initUpdates(ctx context.Context, cfg *config.Config, hub *feed.Hub, logger *logrus.Logger) (gateway.Publisher, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("KAFKA_BROKERS is not set, delivering updates in process")
		return hub, func() {}
	}

	producer, err := sarama.NewSyncProducer(cfg.KafkaBrokers, kafkaConfig())
	if err != nil {
		logger.WithError(err).Fatal("can't create producer")
	}
	consumer, err := sarama.NewConsumer(cfg.KafkaBrokers, kafkaConfig())
	if err != nil {
		logger.WithError(err).Fatal("can't create consumer")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := feed.NewConsumer(consumer, cfg.UpdatesTopic, hub, logger).Run(ctx)
		if err != nil {
			logger.WithError(err).Error("updates consumer stopped")
		}
	}()

	return storage.NewUpdatesStore(producer, &storage.UpdatesStoreConfig{
			UpdatesTopic: cfg.UpdatesTopic,
		}), func() {
			<-done
			if err := consumer.Close(); err != nil {
				logger.WithError(err).Warning("can't close consumer")
			}
			if err := producer.Close(); err != nil {
				logger.WithError(err).Warning("can't close producer")
			}
		}
}

func main() {
	var host string
	var port int
	var logLevel string

	flag.IntVar(&port, "port", 8080, "port on which the bridge will be started")
	flag.StringVar(&host, "host", "127.0.0.1", "host on which the bridge will be started")
	flag.StringVar(&logLevel, "log", "info", "log level")

	flag.Parse()

	logger := initLogger(logLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("can't load configuration: %s", err.Error())
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	defer cancel()

	runMigrations(cfg, logger)
	db := initDB(cfg.DBDsn, logger)
	defer func(db *sqlx.DB) {
		if err := db.Close(); err != nil {
			logger.Errorf("during db connection close an error occurred: %s", err.Error())
		}
	}(db)

	local, err := localstore.Open(cfg.LocalStorePath)
	if err != nil {
		logger.Fatalf("can't open local store: %s", err.Error())
	}
	defer local.Close()

	hub := feed.NewHub(logger)
	publisher, closeUpdates := initUpdates(ctx, cfg, hub, logger)
	defer closeUpdates()

	validate := validator.New()
	session := auth.NewSession([]byte(cfg.JWTSecret), logger)
	backend := gateway.NewService(
		storage.NewRegistry(db),
		publisher,
		hub,
		session,
		gateway.NewProfileCache(),
		validate,
		logger,
	)

	appState := state.New()
	marks := readmarks.NewStore(local, logger)
	prefs := settings.NewService(local, logger)
	page := &bridge.Page{}

	env := &controllers.Env{
		Backend:  backend,
		State:    appState,
		Identity: session,
		Marks:    marks,
		Settings: prefs,
		Videos:   video.NewResolver(&http.Client{Timeout: 5 * time.Second}, cfg.OEmbedURL, logger),
		Page:     page,
		Validate: validate,
		Logger:   logger,
		SiteHost: cfg.SiteHost,
		PageSize: cfg.PageSize,
	}

	srv := bridge.NewServer(env, page, session, cfg.AllowedOrigins, logger)
	tracker := unread.NewTracker(backend, marks, session, appState, prefs, srv, logger)
	env.Unread = tracker

	sh := shell.New(env, srv, session)
	links := deeplink.NewHandler(backend, localstore.NewMemory(), session, sh.OpenChat, srv.ShowAlert, logger)
	srv.Attach(sh, links)
	defer session.OnAuthChange(links.OnAuthChange)()

	tracker.Start()
	defer tracker.Stop()
	sh.Mount()
	defer sh.Unmount()

	if cfg.IDToken != "" {
		profile, err := session.SignIn(cfg.IDToken)
		if err != nil {
			logger.WithError(err).Warning("can't sign in with ID_TOKEN")
		} else if err := backend.SaveUserProfile(ctx, profile); err != nil {
			logger.WithError(err).Warning("can't save user profile")
		}
	}

	address := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("signal caught, gracefully shutting down")
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("bridge shutdown failed")
		}
	}()

	logger.Infof("start listening on %s", address)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("bridge serving error: %s", err.Error())
		cancel()
		os.Exit(1)
	}
}
