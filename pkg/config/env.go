package config

const (
	EnvPrefix = "STOCKTAKE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DefaultReferenceTZ = "Asia/Shanghai"
)

const (
	EnvAppEnv   = "STOCKTAKE_APP_ENV"
	EnvPort     = "STOCKTAKE_APP_PORT"
	EnvLogLevel = "STOCKTAKE_LOG_LEVEL"

	EnvDBDSN  = "STOCKTAKE_DB_DSN"
	EnvDBHost = "STOCKTAKE_DB_HOST"
	EnvDBUser = "STOCKTAKE_DB_USER"
	EnvDBName = "STOCKTAKE_DB_NAME"

	EnvRedisURL = "STOCKTAKE_REDIS_URL"

	EnvJWTSecret              = "STOCKTAKE_JWT_SECRET"
	EnvJWTIssuer              = "STOCKTAKE_JWT_ISSUER"
	EnvJWTExpMins             = "STOCKTAKE_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "STOCKTAKE_REFRESH_TOKEN_TTL_MINUTES"

	EnvUseSQLite   = "STOCKTAKE_USE_SQLITE"
	EnvReferenceTZ = "STOCKTAKE_REFERENCE_TZ"

	EnvClientBaseURL = "STOCKTAKE_CLIENT_BASE_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
