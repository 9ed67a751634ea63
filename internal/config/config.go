package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Common settings shared by every LearnTrack process.
type Common struct {
	Env       string `envconfig:"APP_ENV" default:"development"` // development, test or production
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"` // json or console
}

// Production reports whether the process runs with APP_ENV=production.
func (c Common) Production() bool { return c.Env == "production" }

// Database holds the MySQL connection settings.
type Database struct {
	DBUser            string        `envconfig:"DB_USER" required:"true"`
	DBPass            string        `envconfig:"DB_PASS"`
	DBHost            string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort            string        `envconfig:"DB_PORT" default:"3306"`
	DBName            string        `envconfig:"DB_NAME" required:"true"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"25"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	DBMigrate         bool          `envconfig:"DB_MIGRATE" default:"true"`
}

// DefaultClient describes the client registration created at startup when
// no client with ClientID exists yet.
type DefaultClient struct {
	ClientID           string        `envconfig:"DEFAULT_CLIENT_ID" default:"learntrack"`
	ClientSecret       string        `envconfig:"DEFAULT_CLIENT_SECRET" default:"secret"`
	ClientRedirectURIs []string      `envconfig:"DEFAULT_CLIENT_REDIRECT_URIS" default:"http://127.0.0.1:8080/login/oauth2/code/learntrack"`
	ClientScopes       []string      `envconfig:"DEFAULT_CLIENT_SCOPES" default:"openid,profile,read,write"`
	ClientGrantTypes   []string      `envconfig:"DEFAULT_CLIENT_GRANT_TYPES" default:"authorization_code,refresh_token,client_credentials,password"`
	ClientConsent      bool          `envconfig:"DEFAULT_CLIENT_REQUIRE_CONSENT" default:"true"`
	ClientReuseRefresh bool          `envconfig:"DEFAULT_CLIENT_REUSE_REFRESH_TOKENS" default:"true"`
	ClientAccessTTL    time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"240h"`
	ClientRefreshTTL   time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"720h"`
}

// AuthServer configures `learntrack auth-server`.
type AuthServer struct {
	Common
	Database
	Redis
	DefaultClient

	Addr           string        `envconfig:"AUTH_ADDR" default:":9000"`
	IssuerURL      string        `envconfig:"ISSUER_URL" default:"http://localhost:9000"`
	SigningKeyPath string        `envconfig:"SIGNING_KEY_PATH"` // empty: fresh key per process
	AuthCodeTTL    time.Duration `envconfig:"AUTH_CODE_TTL" default:"5m"`
	BcryptCost     int           `envconfig:"BCRYPT_COST" default:"10"`
	SeedUsers      bool          `envconfig:"SEED_USERS"`
}

// ResourceServer configures `learntrack resource-server`.
type ResourceServer struct {
	Common
	Database
	Redis

	Addr                  string        `envconfig:"RESOURCE_ADDR" default:":8090"`
	JWKSURL               string        `envconfig:"JWKS_URL" default:"http://localhost:9000/.well-known/jwks.json"`
	JWKSCacheTTL          time.Duration `envconfig:"JWKS_CACHE_TTL" default:"15m"`
	IssuerURL             string        `envconfig:"ISSUER_URL"` // empty: iss not checked
	AdminOverride         bool          `envconfig:"ADMIN_OVERRIDE" default:"false"`
	ReviewsAllowAnonymous bool          `envconfig:"REVIEWS_ALLOW_ANONYMOUS" default:"false"`
	ReviewsRequireRole    bool          `envconfig:"REVIEWS_REQUIRE_ROLE" default:"false"`
	RabbitMQURL           string        `envconfig:"RABBITMQ_URL"` // empty: events disabled
}

// ClientServer configures `learntrack client-server`.
type ClientServer struct {
	Common
	Redis

	Addr              string        `envconfig:"CLIENT_ADDR" default:":8080"`
	AuthServerURL     string        `envconfig:"AUTH_SERVER_URL" default:"http://localhost:9000"`
	ResourceServerURL string        `envconfig:"RESOURCE_SERVER_URL" default:"http://localhost:8090"`
	ClientID          string        `envconfig:"CLIENT_ID" default:"learntrack"`
	ClientSecret      string        `envconfig:"CLIENT_SECRET" default:"secret"`
	RedirectURI       string        `envconfig:"CLIENT_REDIRECT_URI" default:"http://127.0.0.1:8080/login/oauth2/code/learntrack"`
	Scopes            []string      `envconfig:"CLIENT_SCOPES" default:"openid,profile,read,write"`
	SessionTTL        time.Duration `envconfig:"SESSION_TTL" default:"8h"`
	CookieSecure      bool          `envconfig:"COOKIE_SECURE" default:"false"`
	HTTPTimeout       time.Duration `envconfig:"HTTP_CLIENT_TIMEOUT" default:"5s"`
}

// AuditConsumer configures `learntrack audit-consumer`.
type AuditConsumer struct {
	Common

	RabbitMQURL  string `envconfig:"RABBITMQ_URL" required:"true"`
	AuditQueue   string `envconfig:"AUDIT_QUEUE" default:"learntrack.audit"`
	AuditLogPath string `envconfig:"AUDIT_LOG_PATH" default:"audit.log"`
}

// LoadAuthServer reads .env (if present) and the environment.
func LoadAuthServer() (AuthServer, error) {
	var c AuthServer
	return c, load(&c)
}

// LoadResourceServer reads .env (if present) and the environment.
func LoadResourceServer() (ResourceServer, error) {
	var c ResourceServer
	return c, load(&c)
}

// LoadClientServer reads .env (if present) and the environment.
func LoadClientServer() (ClientServer, error) {
	var c ClientServer
	return c, load(&c)
}

// LoadAuditConsumer reads .env (if present) and the environment.
func LoadAuditConsumer() (AuditConsumer, error) {
	var c AuditConsumer
	return c, load(&c)
}

func load(dst any) error {
	// Variables already in the environment win over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("process env: %w", err)
	}
	return nil
}
