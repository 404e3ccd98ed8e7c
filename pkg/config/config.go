package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Idempotency   IdempotencyConfig
	Stocktake     StocktakeConfig
	Bootstrap     BootstrapConfig
	Maintenance   MaintenanceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if _, err := cfg.Stocktake.Location(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvReferenceTZ, err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOCKTAKE_APP_ENV" required:"true"`
	Port         string `envconfig:"STOCKTAKE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOCKTAKE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOCKTAKE_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"STOCKTAKE_CORS_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKTAKE_DB_DSN"`
	Driver string `envconfig:"STOCKTAKE_DB_DRIVER" default:"postgres"`

	// SQLitePath is only read when FeatureFlags.UseSQLite is set.
	SQLitePath string `envconfig:"STOCKTAKE_SQLITE_PATH" default:"stocktake.db"`

	LegacyHost     string `envconfig:"STOCKTAKE_DB_HOST"`
	LegacyPort     int    `envconfig:"STOCKTAKE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOCKTAKE_DB_USER"`
	LegacyPassword string `envconfig:"STOCKTAKE_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOCKTAKE_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOCKTAKE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOCKTAKE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKTAKE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKTAKE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKTAKE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery is the threshold above which statements are logged at warn.
	SlowQuery time.Duration `envconfig:"STOCKTAKE_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKTAKE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOCKTAKE_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKTAKE_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKTAKE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKTAKE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKTAKE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKTAKE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKTAKE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKTAKE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"STOCKTAKE_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"STOCKTAKE_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"STOCKTAKE_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"STOCKTAKE_REFRESH_TOKEN_TTL_MINUTES" default:"10080"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"STOCKTAKE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"STOCKTAKE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"STOCKTAKE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"STOCKTAKE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"STOCKTAKE_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow    time.Duration `envconfig:"STOCKTAKE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginNameLimit int           `envconfig:"STOCKTAKE_AUTH_RATE_LIMIT_LOGIN_NAME_LIMIT" default:"5"`
	LoginIPLimit   int           `envconfig:"STOCKTAKE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOCKTAKE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOCKTAKE_AUTO_MIGRATE" default:"false"`
}

// IdempotencyConfig controls how long admin catalog responses are replayable.
type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"STOCKTAKE_IDEMPOTENCY_TTL" default:"24h"`
}

type StocktakeConfig struct {
	ReferenceTZ     string `envconfig:"STOCKTAKE_REFERENCE_TZ" default:"Asia/Shanghai"`
	MaxUploadMB     int    `envconfig:"STOCKTAKE_MAX_UPLOAD_MB" default:"10"`
	InsertBatchSize int    `envconfig:"STOCKTAKE_INSERT_BATCH_SIZE" default:"500"`
}

// Location resolves the reference timezone used to bucket catalog days.
func (s StocktakeConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(s.ReferenceTZ)
	if name == "" {
		name = DefaultReferenceTZ
	}
	return time.LoadLocation(name)
}

// MaxUploadBytes returns the multipart limit for spreadsheet uploads.
func (s StocktakeConfig) MaxUploadBytes() int64 {
	if s.MaxUploadMB <= 0 {
		return 10 << 20
	}
	return int64(s.MaxUploadMB) << 20
}

// MaintenanceConfig drives cmd/maintenance-worker. CatalogRetentionDays of
// zero keeps catalog days forever.
type MaintenanceConfig struct {
	Interval             time.Duration `envconfig:"STOCKTAKE_MAINTENANCE_INTERVAL" default:"24h"`
	LockTTL              time.Duration `envconfig:"STOCKTAKE_MAINTENANCE_LOCK_TTL" default:"1h"`
	AuditRetentionDays   int           `envconfig:"STOCKTAKE_AUDIT_RETENTION_DAYS" default:"180"`
	CatalogRetentionDays int           `envconfig:"STOCKTAKE_CATALOG_RETENTION_DAYS" default:"0"`
}

type BootstrapConfig struct {
	AdminName     string `envconfig:"STOCKTAKE_BOOTSTRAP_ADMIN_NAME"`
	AdminPassword string `envconfig:"STOCKTAKE_BOOTSTRAP_ADMIN_PASSWORD"`
}

// Enabled reports whether an initial administrator should be ensured at startup.
func (b BootstrapConfig) Enabled() bool {
	return strings.TrimSpace(b.AdminName) != "" && b.AdminPassword != ""
}

// ClientConfig drives the command-line API client.
type ClientConfig struct {
	BaseURL  string        `envconfig:"STOCKTAKE_CLIENT_BASE_URL" default:"http://localhost:8080"`
	Timeout  time.Duration `envconfig:"STOCKTAKE_CLIENT_TIMEOUT" default:"15s"`
	Name     string        `envconfig:"STOCKTAKE_CLIENT_NAME"`
	Password string        `envconfig:"STOCKTAKE_CLIENT_PASSWORD"`
}

// LoadClient parses only the client section so the CLI does not need server settings.
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}
	return &cfg, nil
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
