package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	pkgstrings "caminomanager/pkg/platform/strings"
)

// DevSigningKey is only accepted when Env is "development".
const DevSigningKey = "dev-secret-key-change-in-production"

// Config is the full application configuration shared by both binaries.
type Config struct {
	Env      string
	Server   Server
	Auth     Auth
	Postgres PostgresConfig
	Redis    RedisConfig
	Audit    AuditConfig
	Desktop  DesktopConfig
	Log      LogConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	WebDir          string
	SecureCookies   bool
	PublicRoutes    []string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Auth configures the session backend.
type Auth struct {
	JWTSigningKey   string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ConfirmationTTL time.Duration
	LockoutAttempts int
	LockoutWindow   time.Duration
	LockoutDuration time.Duration
}

// PostgresConfig holds the database connection. An empty DSN selects the
// in-memory stores.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

// RedisConfig holds the session store connection. An empty URL selects the
// in-memory session store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuditConfig selects the audit sink. No brokers means audit events stay in
// the primary store only.
type AuditConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// DesktopConfig configures the privileged desktop process.
type DesktopConfig struct {
	AppVersion   string
	FeedURL      string
	PollInterval time.Duration
	UpdateDir    string
	IPCAddr      string
	WebDir       string
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads .env (if present), config.yaml from dir (if present) and
// CAMINO_* environment variables, in increasing precedence.
func Load(dir string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("CAMINO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	cfg.Server.PublicRoutes = pkgstrings.RoutePrefixes(cfg.Server.PublicRoutes)
	cfg.Server.AllowedOrigins = pkgstrings.DedupeAndTrim(cfg.Server.AllowedOrigins)
	cfg.Audit.KafkaBrokers = pkgstrings.DedupeAndTrim(cfg.Audit.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.webDir", "web")
	v.SetDefault("server.secureCookies", false)
	v.SetDefault("server.publicRoutes", []string{"/login", "/auth", "/healthz", "/metrics"})
	v.SetDefault("server.allowedOrigins", []string{"app://camino"})
	v.SetDefault("server.shutdownTimeout", 10*time.Second)

	v.SetDefault("auth.jwtSigningKey", DevSigningKey)
	v.SetDefault("auth.issuer", "caminomanager")
	v.SetDefault("auth.accessTokenTTL", 15*time.Minute)
	v.SetDefault("auth.refreshTokenTTL", 30*24*time.Hour)
	v.SetDefault("auth.confirmationTTL", 24*time.Hour)
	v.SetDefault("auth.lockoutAttempts", 5)
	v.SetDefault("auth.lockoutWindow", 15*time.Minute)
	v.SetDefault("auth.lockoutDuration", 15*time.Minute)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxConns", 10)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.poolSize", 20)
	v.SetDefault("redis.minIdleConns", 2)
	v.SetDefault("redis.dialTimeout", 5*time.Second)
	v.SetDefault("redis.readTimeout", 3*time.Second)
	v.SetDefault("redis.writeTimeout", 3*time.Second)

	v.SetDefault("audit.kafkaBrokers", []string{})
	v.SetDefault("audit.kafkaTopic", "camino.audit")

	v.SetDefault("desktop.appVersion", "0.0.0")
	v.SetDefault("desktop.feedURL", "")
	v.SetDefault("desktop.pollInterval", time.Hour)
	v.SetDefault("desktop.updateDir", "updates")
	v.SetDefault("desktop.ipcAddr", "127.0.0.1:47615")
	v.SetDefault("desktop.webDir", "web")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate rejects configurations that would be unsafe to run.
func (c *Config) Validate() error {
	if c.Auth.JWTSigningKey == "" {
		return errors.New("auth.jwtSigningKey is required")
	}
	if c.Env != "development" && c.Auth.JWTSigningKey == DevSigningKey {
		return errors.New("auth.jwtSigningKey must be overridden outside development")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Auth.RefreshTokenTTL < c.Auth.AccessTokenTTL {
		return errors.New("auth.refreshTokenTTL must not be shorter than auth.accessTokenTTL")
	}
	return nil
}

// IsDevelopment reports whether the process runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
