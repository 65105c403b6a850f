// Package config resolves process settings once at start-up. Sources, lowest
// precedence first: built-in defaults, config.yaml, .env, the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "CACHEPLEDGE"

// Keys. The matching environment variable is CACHEPLEDGE_<KEY> upper-cased.
const (
	keyHTTPAddr          = "http_addr"
	keyGRPCAddr          = "grpc_addr"
	keyBaseURL           = "base_url"
	keyDSN               = "pg_dsn"
	keyRedisAddr         = "redis_addr"
	keyRedisPassword     = "redis_password"
	keyAuthSecret        = "auth_secret"
	keyAdminEmails       = "admin_emails"
	keyAdminPasswordHash = "admin_password_hash"
	keyAdminPassword     = "admin_password"
	keySMTPHost          = "smtp_host"
	keySMTPPort          = "smtp_port"
	keySMTPUser          = "smtp_user"
	keySMTPPassword      = "smtp_password"
	keySMTPFrom          = "smtp_from"
	keyCORSOrigins       = "cors_origins"
	keyRateLimitRPS      = "rate_limit_rps"
	keyRateLimitBurst    = "rate_limit_burst"
	keySessionTTL        = "session_ttl"
	keyEditTokenTTL      = "edit_token_ttl"
	keyMagicLinkTTL      = "magic_link_ttl"
	keyExportPrefix      = "export_prefix"
	keyEventName         = "event_name"
	keySecureCookies     = "secure_cookies"
	keyOutboxWorkers     = "outbox_workers"
)

// ErrMissingSecret is returned when no signing secret is configured.
var ErrMissingSecret = errors.New("config: " + envPrefix + "_AUTH_SECRET is required")

// Config is the resolved process configuration.
type Config struct {
	HTTPAddr string
	GRPCAddr string
	BaseURL  string

	PostgresDSN   string
	RedisAddr     string
	RedisPassword string

	AuthSecret        string
	AdminEmails       []string
	AdminPasswordHash string
	AdminPassword     string

	SMTP SMTP

	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int

	SessionTTL   time.Duration
	EditTokenTTL time.Duration
	MagicLinkTTL time.Duration

	ExportPrefix  string
	EventName     string
	SecureCookies bool
	OutboxWorkers int
}

// SMTP holds outbound mail settings. An empty Host disables delivery.
type SMTP struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Options control where Load looks.
type Options struct {
	// EnvFiles are loaded with godotenv; missing files are skipped. Nil means ".env".
	EnvFiles []string
	// ConfigDirs are searched for config.yaml. Nil means the working directory.
	ConfigDirs []string
}

func defaults(v *viper.Viper) {
	v.SetDefault(keyHTTPAddr, ":8080")
	v.SetDefault(keyGRPCAddr, ":9090")
	v.SetDefault(keyBaseURL, "http://localhost:8080")
	v.SetDefault(keySMTPPort, 587)
	v.SetDefault(keyRateLimitRPS, 10.0)
	v.SetDefault(keyRateLimitBurst, 20)
	v.SetDefault(keySessionTTL, 30*24*time.Hour)
	v.SetDefault(keyEditTokenTTL, 24*time.Hour)
	v.SetDefault(keyMagicLinkTTL, 24*time.Hour)
	v.SetDefault(keyExportPrefix, "irc26")
	v.SetDefault(keyEventName, "IRC26")
	v.SetDefault(keySecureCookies, true)
	v.SetDefault(keyOutboxWorkers, 2)
	for _, k := range []string{
		keyDSN, keyRedisAddr, keyRedisPassword, keyAuthSecret, keyAdminEmails, keyAdminPasswordHash,
		keyAdminPassword, keySMTPHost, keySMTPUser, keySMTPPassword, keySMTPFrom, keyCORSOrigins,
	} {
		v.SetDefault(k, "")
	}
}

// Load resolves the configuration.
func Load(opts Options) (Config, error) {
	files := opts.EnvFiles
	if files == nil {
		files = []string{".env"}
	}
	for _, f := range files {
		// ok if missing in prod
		_ = godotenv.Load(f)
	}

	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	dirs := opts.ConfigDirs
	if dirs == nil {
		dirs = []string{"."}
	}
	for _, d := range dirs {
		v.AddConfigPath(d)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		HTTPAddr:          v.GetString(keyHTTPAddr),
		GRPCAddr:          v.GetString(keyGRPCAddr),
		BaseURL:           strings.TrimRight(v.GetString(keyBaseURL), "/"),
		PostgresDSN:       v.GetString(keyDSN),
		RedisAddr:         v.GetString(keyRedisAddr),
		RedisPassword:     v.GetString(keyRedisPassword),
		AuthSecret:        v.GetString(keyAuthSecret),
		AdminEmails:       splitList(v.Get(keyAdminEmails)),
		AdminPasswordHash: strings.TrimSpace(v.GetString(keyAdminPasswordHash)),
		AdminPassword:     v.GetString(keyAdminPassword),
		SMTP: SMTP{
			Host:     v.GetString(keySMTPHost),
			Port:     v.GetInt(keySMTPPort),
			User:     v.GetString(keySMTPUser),
			Password: v.GetString(keySMTPPassword),
			From:     v.GetString(keySMTPFrom),
		},
		CORSOrigins:    splitList(v.Get(keyCORSOrigins)),
		RateLimitRPS:   v.GetFloat64(keyRateLimitRPS),
		RateLimitBurst: v.GetInt(keyRateLimitBurst),
		SessionTTL:     v.GetDuration(keySessionTTL),
		EditTokenTTL:   v.GetDuration(keyEditTokenTTL),
		MagicLinkTTL:   v.GetDuration(keyMagicLinkTTL),
		ExportPrefix:   v.GetString(keyExportPrefix),
		EventName:      v.GetString(keyEventName),
		SecureCookies:  v.GetBool(keySecureCookies),
		OutboxWorkers:  v.GetInt(keyOutboxWorkers),
	}
	if strings.TrimSpace(cfg.AuthSecret) == "" {
		return Config{}, ErrMissingSecret
	}
	if cfg.OutboxWorkers <= 0 {
		cfg.OutboxWorkers = 1
	}
	return cfg, nil
}

// splitList accepts a comma-separated string (environment) or a YAML list.
func splitList(raw any) []string {
	var parts []string
	switch t := raw.(type) {
	case string:
		parts = strings.Split(t, ",")
	case []string:
		parts = t
	case []any:
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
