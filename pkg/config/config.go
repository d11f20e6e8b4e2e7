package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "TIERPRICE"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names used by Load and by tests.
const (
	EnvAppEnv          = "TIERPRICE_APP_ENV"
	EnvPort            = "TIERPRICE_APP_PORT"
	EnvDBDSN           = "TIERPRICE_DB_DSN"
	EnvDBHost          = "TIERPRICE_DB_HOST"
	EnvDBUser          = "TIERPRICE_DB_USER"
	EnvDBName          = "TIERPRICE_DB_NAME"
	EnvRedisURL        = "TIERPRICE_REDIS_URL"
	EnvGCPProjectID    = "TIERPRICE_GCP_PROJECT_ID"
	EnvReindexTopic    = "TIERPRICE_PUBSUB_REINDEX_TOPIC"
	EnvLinkField       = "TIERPRICE_PRICING_LINK_FIELD"
	EnvPriceListScopes = "TIERPRICE_PRICING_PRICE_LISTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	GCP     GCPConfig
	PubSub  PubSubConfig
	Pricing PricingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TIERPRICE_APP_ENV" required:"true"`
	Port         string `envconfig:"TIERPRICE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TIERPRICE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"TIERPRICE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"TIERPRICE_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"TIERPRICE_AUTO_MIGRATE" default:"false"`

	CORSOrigins []string `envconfig:"TIERPRICE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TIERPRICE_DB_DSN"`
	Driver string `envconfig:"TIERPRICE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TIERPRICE_DB_HOST"`
	LegacyPort     int    `envconfig:"TIERPRICE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TIERPRICE_DB_USER"`
	LegacyPassword string `envconfig:"TIERPRICE_DB_PASSWORD"`
	LegacyName     string `envconfig:"TIERPRICE_DB_NAME"`
	LegacySSLMode  string `envconfig:"TIERPRICE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TIERPRICE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TIERPRICE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TIERPRICE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TIERPRICE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TIERPRICE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TIERPRICE_REDIS_ADDR"`
	Password     string        `envconfig:"TIERPRICE_REDIS_PASSWORD"`
	DB           int           `envconfig:"TIERPRICE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TIERPRICE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TIERPRICE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TIERPRICE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TIERPRICE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TIERPRICE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TIERPRICE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TIERPRICE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TIERPRICE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ReindexTopic string `envconfig:"TIERPRICE_PUBSUB_REINDEX_TOPIC" required:"true"`
}

// PricingConfig carries the reconciliation knobs.
//
// LinkField is the column correlating a tier price row to a product entity.
// Stores migrated from staging schemas use row_id instead of entity_id, so
// the value is configuration, never hardcoded.
type PricingConfig struct {
	LinkField      string        `envconfig:"TIERPRICE_PRICING_LINK_FIELD" default:"entity_id"`
	LookupCacheTTL time.Duration `envconfig:"TIERPRICE_PRICING_LOOKUP_CACHE_TTL" default:"5m"`
	MaxBatchSize   int           `envconfig:"TIERPRICE_PRICING_MAX_BATCH_SIZE" default:"1000"`
	PriceLists     []string      `envconfig:"TIERPRICE_PRICING_PRICE_LISTS" default:"default"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
