package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

type Config struct {
	ClientID               string   `env:"CLIENT_ID,required,notEmpty"`
	ClientSecret           string   `env:"CLIENT_SECRET,required,notEmpty"`
	AccessTokenHMACSecret  string   `env:"ACCESS_TOKEN_HMAC_SECRET,required,notEmpty"`
	RefreshTokenHMACSecret string   `env:"REFRESH_TOKEN_HMAC_SECRET,required,notEmpty"`
	OIDCIssuerURL          string   `env:"OIDC_ISSUER_URL,required,notEmpty"`
	RedirectURL            string   `env:"OIDC_REDIRECT_URL" envDefault:"http://localhost:3000/oidc/token"`
	Scopes                 []string `env:"OIDC_SCOPES"       envDefault:"openid,roles" envSeparator:","`
	AdminRole              string   `env:"OIDC_ADMIN_ROLE"   envDefault:"wol-admin"`

	ProviderTimeout time.Duration `env:"OIDC_PROVIDER_TIMEOUT" envDefault:"10s"`

	// Issuer is the iss claim of the tokens we mint ourselves.
	Issuer string `env:"TOKEN_ISSUER" envDefault:"http://localhost:3000"`

	// CookieSecure can only be turned off for local plain-http testing.
	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"true"`

	SessionStore     string        `env:"SESSION_STORE"      envDefault:"memory"`
	SessionTTL       time.Duration `env:"SESSION_TTL"        envDefault:"2m"`
	SessionCacheSize int           `env:"SESSION_CACHE_SIZE" envDefault:"10000"`
	RedisURL         string        `env:"REDIS_URL"`

	DatabaseFile        string        `env:"DATABASE_FILE"         envDefault:"wateroflife.db"`
	Env                 string        `env:"ENV"                   envDefault:"dev"`
	LogLevel            string        `env:"LOG_LEVEL"             envDefault:"info"`
	LogFormat           string        `env:"LOG_FORMAT"            envDefault:"json"`
	Port                int           `env:"PORT"                  envDefault:"3000"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
}

// LoadConfig reads the process environment. Missing required variables
// are reported together.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the rules the struct tags cannot express.
func (c Config) Validate() error {
	var errs []error

	if c.AccessTokenHMACSecret == c.RefreshTokenHMACSecret {
		errs = append(errs, errors.New("ACCESS_TOKEN_HMAC_SECRET and REFRESH_TOKEN_HMAC_SECRET must differ"))
	}

	switch c.SessionStore {
	case SessionStoreMemory:
		if c.SessionCacheSize <= 0 {
			errs = append(errs, errors.New("SESSION_CACHE_SIZE must be positive"))
		}
	case SessionStoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when SESSION_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreMemory, SessionStoreRedis, c.SessionStore))
	}

	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}

	return errors.Join(errs...)
}
