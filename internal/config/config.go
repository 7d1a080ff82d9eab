package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrMissingKey = errors.New("required configuration key is not set")

type Config struct {
	DBDsn          string
	MigrationsDsn  string
	MigrationsDir  string
	KafkaBrokers   []string
	UpdatesTopic   string
	JWTSecret      string
	IDToken        string
	LocalStorePath string
	SiteHost       string
	OEmbedURL      string
	PageSize       int
	AllowedOrigins []string
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("MIGRATIONS_DIR", "file://migrations")
	v.SetDefault("UPDATES_TOPIC", "dm-updates")
	v.SetDefault("LOCAL_STORE_PATH", "dm-local.db")
	v.SetDefault("SITE_HOST", "www.youtube.com")
	v.SetDefault("PAGE_SIZE", 25)

	cfg := &Config{
		DBDsn:          v.GetString("DB_DSN"),
		MigrationsDsn:  v.GetString("MIGRATIONS_DSN"),
		MigrationsDir:  v.GetString("MIGRATIONS_DIR"),
		KafkaBrokers:   splitList(v.GetString("KAFKA_BROKERS")),
		UpdatesTopic:   v.GetString("UPDATES_TOPIC"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		IDToken:        v.GetString("ID_TOKEN"),
		LocalStorePath: v.GetString("LOCAL_STORE_PATH"),
		SiteHost:       v.GetString("SITE_HOST"),
		OEmbedURL:      v.GetString("OEMBED_URL"),
		PageSize:       v.GetInt("PAGE_SIZE"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
	}

	if cfg.DBDsn == "" {
		return nil, missing("DB_DSN")
	}
	if cfg.JWTSecret == "" {
		return nil, missing("JWT_SECRET")
	}
	return cfg, nil
}

func missing(key string) error {
	return fmt.Errorf("%w: %s", ErrMissingKey, key)
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
