package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DevSigningKey is the development default; Validate rejects it outside development.
const DevSigningKey = "dev-secret-key-change-in-production"

// Rate limit store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Server captures process level configuration.
type Server struct {
	Addr           string        `koanf:"addr"`
	Environment    string        `koanf:"environment"`
	LogLevel       string        `koanf:"log_level"`
	JWTSigningKey  string        `koanf:"jwt_signing_key"`
	TokenTTL       time.Duration `koanf:"token_ttl"`
	TokenIssuer    string        `koanf:"token_issuer"`
	BcryptCost     int           `koanf:"bcrypt_cost"`
	TrustedProxies []string      `koanf:"trusted_proxies"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxBodyBytes   int64         `koanf:"max_body_bytes"`

	Database  Database  `koanf:"database"`
	Redis     Redis     `koanf:"redis"`
	Kafka     Kafka     `koanf:"kafka"`
	Lockout   Lockout   `koanf:"lockout"`
	RateLimit RateLimit `koanf:"rate_limit"`
	Captcha   Captcha   `koanf:"captcha"`
	Reset     Reset     `koanf:"reset"`
}

type Database struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	MigrateOnStart  bool          `koanf:"migrate_on_start"`
}

type Redis struct {
	URL          string        `koanf:"url"`
	PoolSize     int           `koanf:"pool_size"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// Kafka configures the mail-dispatch producer. Empty Brokers selects the log sender.
type Kafka struct {
	Brokers    string `koanf:"brokers"`
	EmailTopic string `koanf:"email_topic"`
}

type Lockout struct {
	Threshold int           `koanf:"threshold"`
	Duration  time.Duration `koanf:"duration"`
}

// Limit is a sliding-window ceiling: Requests per Window.
type Limit struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
}

type RateLimit struct {
	Backend         string        `koanf:"backend"`
	AccountMutation Limit         `koanf:"account_mutation"`
	PasswordReset   Limit         `koanf:"password_reset"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// Captcha configures the siteverify client. Disabled must be set explicitly.
type Captcha struct {
	Disabled  bool          `koanf:"disabled"`
	Secret    string        `koanf:"secret"`
	VerifyURL string        `koanf:"verify_url"`
	Timeout   time.Duration `koanf:"timeout"`
}

type Reset struct {
	TokenTTL        time.Duration `koanf:"token_ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// Default returns the development configuration.
func Default() Server {
	return Server{
		Addr:           ":8080",
		Environment:    "development",
		LogLevel:       "info",
		JWTSigningKey:  DevSigningKey,
		TokenTTL:       7 * 24 * time.Hour,
		TokenIssuer:    "bastion",
		BcryptCost:     12,
		RequestTimeout: 10 * time.Second,
		MaxBodyBytes:   1 << 20,
		Database: Database{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: Redis{
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{EmailTopic: "bastion.mail.password-reset"},
		Lockout: Lockout{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		RateLimit: RateLimit{
			Backend:         BackendMemory,
			AccountMutation: Limit{Requests: 10, Window: time.Minute},
			PasswordReset:   Limit{Requests: 5, Window: 15 * time.Minute},
			CleanupInterval: 5 * time.Minute,
		},
		Captcha: Captcha{
			VerifyURL: "https://www.google.com/recaptcha/api/siteverify",
			Timeout:   5 * time.Second,
		},
		Reset: Reset{
			TokenTTL:        time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
	}
}

// FromEnv builds a Server config from environment variables so main stays lean.
// Unparseable values keep the default.
func FromEnv() Server {
	cfg := Default()

	setString(&cfg.Addr, "BASTION_ADDR")
	setString(&cfg.Environment, "ENVIRONMENT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.JWTSigningKey, "JWT_SIGNING_KEY")
	setDuration(&cfg.TokenTTL, "TOKEN_TTL")
	setInt(&cfg.BcryptCost, "BCRYPT_COST")
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitList(v)
	}

	setString(&cfg.Database.URL, "DATABASE_URL")
	setBool(&cfg.Database.MigrateOnStart, "DATABASE_MIGRATE_ON_START")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Kafka.Brokers, "KAFKA_BROKERS")
	setString(&cfg.Kafka.EmailTopic, "KAFKA_EMAIL_TOPIC")

	setInt(&cfg.Lockout.Threshold, "LOCKOUT_THRESHOLD")
	setDuration(&cfg.Lockout.Duration, "LOCKOUT_DURATION")

	setString(&cfg.RateLimit.Backend, "RATE_LIMIT_BACKEND")

	setBool(&cfg.Captcha.Disabled, "CAPTCHA_DISABLED")
	setString(&cfg.Captcha.Secret, "CAPTCHA_SECRET")
	setString(&cfg.Captcha.VerifyURL, "CAPTCHA_VERIFY_URL")
	setDuration(&cfg.Captcha.Timeout, "CAPTCHA_TIMEOUT")

	setDuration(&cfg.Reset.TokenTTL, "RESET_TOKEN_TTL")
	return cfg
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"addr":               "addr",
	"log-level":          "log_level",
	"environment":        "environment",
	"database-url":       "database.url",
	"redis-url":          "redis.url",
	"kafka-brokers":      "kafka.brokers",
	"rate-limit-backend": "rate_limit.backend",
	"migrate-on-start":   "database.migrate_on_start",
}

// Load starts from FromEnv, then overlays the YAML file at path (if any) and
// every flag the user explicitly set.
func Load(path string, flags *pflag.FlagSet) (Server, error) {
	cfg := FromEnv()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Server{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Server{}, fmt.Errorf("load flags: %w", err)
		}
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Server{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// IsProduction reports whether unsafe development defaults must be refused.
func (s Server) IsProduction() bool {
	return s.Environment != "development" && s.Environment != "test"
}

// Validate rejects configurations that would start an unsafe or broken server.
func (s Server) Validate() error {
	var errs []error
	if s.IsProduction() && s.JWTSigningKey == DevSigningKey {
		errs = append(errs, errors.New("jwt_signing_key must be set outside development"))
	}
	if len(s.JWTSigningKey) < 32 && s.IsProduction() {
		errs = append(errs, errors.New("jwt_signing_key must be at least 32 bytes"))
	}
	if !s.Captcha.Disabled && s.Captcha.Secret == "" {
		errs = append(errs, errors.New("captcha.secret is required unless captcha.disabled is set"))
	}
	if s.Captcha.Disabled && s.IsProduction() {
		errs = append(errs, errors.New("captcha cannot be disabled outside development"))
	}
	if s.Lockout.Threshold < 1 || s.Lockout.Duration <= 0 {
		errs = append(errs, errors.New("lockout threshold and duration must be positive"))
	}
	for name, l := range map[string]Limit{
		"account_mutation": s.RateLimit.AccountMutation,
		"password_reset":   s.RateLimit.PasswordReset,
	} {
		if l.Requests < 1 || l.Window <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.%s must have positive requests and window", name))
		}
	}
	switch s.RateLimit.Backend {
	case BackendMemory:
	case BackendPostgres:
		if s.Database.URL == "" {
			errs = append(errs, errors.New("rate_limit.backend=postgres requires database.url"))
		}
	case BackendRedis:
		if s.Redis.URL == "" {
			errs = append(errs, errors.New("rate_limit.backend=redis requires redis.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown rate_limit.backend %q", s.RateLimit.Backend))
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
