// Package config loads the service configuration. Defaults and
// constraints live in an embedded CUE schema; an optional CUE file and
// environment variables are layered on top, and the result is validated
// against the schema again before use.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/shopspring/decimal"
)

//go:embed schema.cue
var schemaSource string

// Config is the decoded #Config.
type Config struct {
	Env      string         `json:"env"`
	Log      LogConfig      `json:"log"`
	HTTP     HTTPConfig     `json:"http"`
	Database DatabaseConfig `json:"database"`
	Sessions SessionsConfig `json:"sessions"`
	Auth     AuthConfig     `json:"auth"`
	Address  AddressConfig  `json:"address"`
	Events   EventsConfig   `json:"events"`
	Payments PaymentsConfig `json:"payments"`
}

type LogConfig struct {
	Level string `json:"level"`
}

type HTTPConfig struct {
	Addr            string   `json:"addr"`
	ReadTimeout     Duration `json:"read_timeout"`
	WriteTimeout    Duration `json:"write_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
	AllowedOrigins  []string `json:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver  string `json:"driver"`
	DSN     string `json:"dsn"`
	Migrate bool   `json:"migrate"`
}

type SessionsConfig struct {
	Backend    string      `json:"backend"`
	TTL        Duration    `json:"ttl"`
	CookieName string      `json:"cookie_name"`
	Redis      RedisConfig `json:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

type AuthConfig struct {
	BootstrapAdmin Credentials `json:"bootstrap_admin"`
}

// Credentials name the admin created on first start when no users exist.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Enabled reports whether both fields are set.
func (c Credentials) Enabled() bool {
	return c.Username != "" && c.Password != ""
}

type AddressConfig struct {
	BaseURL   string   `json:"base_url"`
	Timeout   Duration `json:"timeout"`
	CacheTTL  Duration `json:"cache_ttl"`
	CacheSize int      `json:"cache_size"`
}

type EventsConfig struct {
	Buffer int        `json:"buffer"`
	AMQP   AMQPConfig `json:"amqp"`
}

type AMQPConfig struct {
	Enabled       bool   `json:"enabled"`
	URL           string `json:"url"`
	Exchange      string `json:"exchange"`
	RoutingPrefix string `json:"routing_prefix"`
}

type PaymentsConfig struct {
	LateFeeRate         string `json:"late_fee_rate"`
	MonthlyInterestRate string `json:"monthly_interest_rate"`
	DaysPerMonth        int    `json:"days_per_month"`
}

// Rates parses the decimal rates. The schema has already checked their
// syntax.
func (p PaymentsConfig) Rates() (fee, monthly decimal.Decimal, err error) {
	if fee, err = decimal.NewFromString(p.LateFeeRate); err != nil {
		return fee, monthly, fmt.Errorf("config: payments.late_fee_rate: %w", err)
	}
	if monthly, err = decimal.NewFromString(p.MonthlyInterestRate); err != nil {
		return fee, monthly, fmt.Errorf("config: payments.monthly_interest_rate: %w", err)
	}
	return fee, monthly, nil
}

// Duration is a time.Duration written as a Go duration string.
type Duration string

// Std converts d. Values have passed the schema's pattern, so a parse
// failure yields zero.
func (d Duration) Std() time.Duration {
	v, _ := time.ParseDuration(string(d))
	return v
}

// Load reads the configuration from the CUE file at path (optional, may
// be empty) and the process environment.
func Load(path string) (*Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(path string, lookup func(string) (string, bool)) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config: compiling schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		file := ctx.CompileBytes(data, cue.Filename(path))
		if err := file.Err(); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
		v = v.Unify(file)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	if cfg.HTTP.AllowedOrigins == nil {
		cfg.HTTP.AllowedOrigins = []string{}
	}

	// Environment values bypassed the schema; check them against it.
	final := def.Unify(ctx.Encode(cfg))
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("config: environment override: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("RENTALS_ENV", &cfg.Env)
	str("RENTALS_LOG_LEVEL", &cfg.Log.Level)
	str("RENTALS_HTTP_ADDR", &cfg.HTTP.Addr)
	if port, ok := lookup("PORT"); ok && port != "" {
		cfg.HTTP.Addr = ":" + port
	}
	if origins, ok := lookup("RENTALS_ALLOWED_ORIGINS"); ok && origins != "" {
		cfg.HTTP.AllowedOrigins = splitList(origins)
	}

	str("RENTALS_DB_DRIVER", &cfg.Database.Driver)
	if url, ok := lookup("DATABASE_URL"); ok && url != "" {
		cfg.Database.DSN = url
		if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
			cfg.Database.Driver = "postgres"
		}
	}

	str("RENTALS_SESSION_BACKEND", &cfg.Sessions.Backend)
	str("RENTALS_REDIS_ADDR", &cfg.Sessions.Redis.Addr)
	str("RENTALS_REDIS_PASSWORD", &cfg.Sessions.Redis.Password)
	str("RENTALS_ADMIN_USERNAME", &cfg.Auth.BootstrapAdmin.Username)
	str("RENTALS_ADMIN_PASSWORD", &cfg.Auth.BootstrapAdmin.Password)
	str("RENTALS_ADDRESS_URL", &cfg.Address.BaseURL)

	if url, ok := lookup("RENTALS_AMQP_URL"); ok && url != "" {
		cfg.Events.AMQP.URL = url
		cfg.Events.AMQP.Enabled = true
	}
	if raw, ok := lookup("RENTALS_AMQP_ENABLED"); ok && raw != "" {
		on, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("config: RENTALS_AMQP_ENABLED: %w", err)
		}
		cfg.Events.AMQP.Enabled = on
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
