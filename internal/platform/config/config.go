package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	id "seisreg/pkg/domain"
)

// EnvPrefix is prepended to every variable name, e.g. SEISREG_ADDR.
const EnvPrefix = "SEISREG"

const devSigningKey = "dev-secret-key-change-in-production"

// Config is the process configuration, populated from the environment.
type Config struct {
	Addr            string        `envconfig:"ADDR"             default:":8080"`
	AdminAddress    string        `envconfig:"ADMIN_ADDRESS"`
	JWTSigningKey   string        `envconfig:"JWT_SIGNING_KEY"  default:"dev-secret-key-change-in-production"`
	JWTIssuer       string        `envconfig:"JWT_ISSUER"       default:"seisreg"`
	TokenTTL        time.Duration `envconfig:"TOKEN_TTL"        default:"1h"`
	DevAdminToken   string        `envconfig:"DEV_ADMIN_TOKEN"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	// Embedded so their variables share the top-level prefix.
	Log
	Events
}

// Log selects the slog handler.
type Log struct {
	Level  string `envconfig:"LOG_LEVEL"  default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Events configures the notification sinks. Every sink is optional; an unset
// URL or broker list leaves that sink out of the forwarder.
type Events struct {
	DatabaseURL  string        `envconfig:"DATABASE_URL"`
	RedisURL     string        `envconfig:"REDIS_URL"`
	RedisStream  string        `envconfig:"REDIS_STREAM"        default:"seisreg:events"`
	KafkaBrokers []string      `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string        `envconfig:"KAFKA_TOPIC"         default:"seisreg.events"`
	BatchSize    int           `envconfig:"EVENT_BATCH_SIZE"    default:"100"`
	PollInterval time.Duration `envconfig:"EVENT_POLL_INTERVAL" default:"1s"`
}

// FromEnv loads and validates the configuration.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.AdminAddress == "" {
		errs = append(errs, errors.New("SEISREG_ADMIN_ADDRESS is required"))
	} else if admin, err := id.ParseAddress(c.AdminAddress); err != nil {
		errs = append(errs, fmt.Errorf("SEISREG_ADMIN_ADDRESS: %w", err))
	} else if admin.IsZero() {
		errs = append(errs, errors.New("SEISREG_ADMIN_ADDRESS must not be the zero address"))
	}
	if c.JWTSigningKey == "" {
		errs = append(errs, errors.New("SEISREG_JWT_SIGNING_KEY must not be empty"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("SEISREG_TOKEN_TTL must be positive"))
	}
	if c.Events.BatchSize <= 0 {
		errs = append(errs, errors.New("SEISREG_EVENT_BATCH_SIZE must be positive"))
	}
	if c.Events.PollInterval <= 0 {
		errs = append(errs, errors.New("SEISREG_EVENT_POLL_INTERVAL must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("SEISREG_LOG_FORMAT %q is not json or text", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Admin returns the parsed bootstrap administrator. Call after Validate.
func (c *Config) Admin() id.Address {
	admin, _ := id.ParseAddress(c.AdminAddress)
	return admin
}

// UsesDevSigningKey reports whether the built-in signing key is in use.
func (c *Config) UsesDevSigningKey() bool {
	return c.JWTSigningKey == devSigningKey
}
