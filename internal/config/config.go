package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MinSecretLength is the shortest accepted AUTH0_SECRET
const MinSecretLength = 32

// Config contains runtime configuration values
type Config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	Mode            string        `env:"GIN_MODE" envDefault:"debug"`
	BaseURL         string        `env:"SITE_URL" envDefault:"http://localhost:3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Auth     AuthConfig
	Database DatabaseConfig
}

// AuthConfig holds the OpenID Connect client settings
type AuthConfig struct {
	Secret       string `env:"AUTH0_SECRET,required,notEmpty"`
	ClientID     string `env:"AUTH0_CLIENT_ID,required,notEmpty"`
	ClientSecret string `env:"AUTH0_CLIENT_SECRET,required,notEmpty"`
	IssuerURL    string `env:"AUTH0_ISSUER_BASE_URL,required,notEmpty"`
	// Auth0Logout ends the session at the provider via /v2/logout
	Auth0Logout bool `env:"AUTH0_LOGOUT" envDefault:"true"`
}

// DatabaseConfig holds the connection string and pool settings
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL,required,notEmpty"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"100"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	ConnectRetries  int           `env:"DB_CONNECT_RETRIES" envDefault:"5"`
	RetryDelay      time.Duration `env:"DB_RETRY_DELAY" envDefault:"5s"`
}

// Load reads .env (if present) and parses the environment into a Config.
func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse(env.Options{})
}

// Parse builds a Config from the given env options and validates it.
// Tests pass Environment to avoid touching the process environment.
func Parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values env tags cannot express.
func (c *Config) Validate() error {
	if len(c.Auth.Secret) < MinSecretLength {
		return fmt.Errorf("AUTH0_SECRET must be at least %d characters", MinSecretLength)
	}
	if err := validateAbsoluteURL("AUTH0_ISSUER_BASE_URL", c.Auth.IssuerURL); err != nil {
		return err
	}
	if err := validateAbsoluteURL("SITE_URL", c.BaseURL); err != nil {
		return err
	}
	switch c.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("GIN_MODE must be debug, release or test, got %q", c.Mode)
	}
	if c.Database.ConnectRetries < 1 {
		return errors.New("DB_CONNECT_RETRIES must be at least 1")
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return nil
}

// IsRelease reports whether gin runs in release mode
func (c Config) IsRelease() bool {
	return c.Mode == "release"
}

// CallbackURL is where the identity provider sends the user back to
func (c Config) CallbackURL() string {
	return c.BaseURL + "/callback"
}

// Addr is the listen address for the HTTP server
func (c Config) Addr() string {
	return ":" + c.Port
}

func validateAbsoluteURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", name)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
