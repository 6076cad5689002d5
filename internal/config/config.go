// Package config assembles the server's runtime settings.
//
// Sources are applied in order, each overriding the previous one:
// built-in defaults, an optional .env file, environment variables, and
// finally command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinSecretLength is the shortest accepted SESSION_SECRET.
const MinSecretLength = 16

// Config holds every setting the server reads at start-up.
type Config struct {
	Port   int
	DBPath string

	SessionSecret string
	SessionTTL    time.Duration
	CookieSecure  bool

	BroadcastScope  string // "all" or "room"
	BindSender      bool
	AllowedOrigins  []string
	PersistWorkers  int
	PersistQueue    int
	MaxMessageBytes int64
	RateBurst       int
	RateInterval    time.Duration
	DefaultRooms    []string

	AvatarBackend  string // "local" or "s3"
	AvatarDir      string
	MaxAvatarBytes int64
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3PublicURL    string

	LogLevel  string
	LogFormat string // "text" or "json"
}

// Defaults returns the development configuration. SessionSecret is left
// empty on purpose and must be supplied.
func Defaults() *Config {
	return &Config{
		Port:            8080,
		DBPath:          "data/roomchat.db",
		SessionTTL:      7 * 24 * time.Hour,
		BroadcastScope:  "all",
		PersistWorkers:  1,
		PersistQueue:    256,
		MaxMessageBytes: 4096,
		RateBurst:       5,
		RateInterval:    time.Second,
		DefaultRooms:    []string{"general", "random"},
		AvatarBackend:   "local",
		AvatarDir:       "data/profile_pics",
		MaxAvatarBytes:  5 << 20,
		S3Region:        "us-east-1",
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load builds the configuration from envFile (skipped when it does not
// exist), the process environment and args, then validates it.
func Load(envFile string, args []string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: reading %s: %w", envFile, err)
		}
	}

	cfg := Defaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.applyFlags(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	e := &envReader{}

	c.Port = e.int("PORT", c.Port)
	c.DBPath = getEnv("DB_PATH", c.DBPath)

	c.SessionSecret = getEnv("SESSION_SECRET", c.SessionSecret)
	c.SessionTTL = e.duration("SESSION_TTL", c.SessionTTL)
	c.CookieSecure = e.bool("COOKIE_SECURE", c.CookieSecure)

	c.BroadcastScope = getEnv("BROADCAST_SCOPE", c.BroadcastScope)
	c.BindSender = e.bool("BIND_SENDER", c.BindSender)
	c.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.PersistWorkers = e.int("PERSIST_WORKERS", c.PersistWorkers)
	c.PersistQueue = e.int("PERSIST_QUEUE", c.PersistQueue)
	c.MaxMessageBytes = int64(e.int("MAX_MESSAGE_BYTES", int(c.MaxMessageBytes)))
	c.RateBurst = e.int("RATE_BURST", c.RateBurst)
	c.RateInterval = e.duration("RATE_INTERVAL", c.RateInterval)
	c.DefaultRooms = getEnvList("DEFAULT_ROOMS", c.DefaultRooms)

	c.AvatarBackend = getEnv("AVATAR_BACKEND", c.AvatarBackend)
	c.AvatarDir = getEnv("AVATAR_DIR", c.AvatarDir)
	c.MaxAvatarBytes = int64(e.int("MAX_AVATAR_BYTES", int(c.MaxAvatarBytes)))
	c.S3Bucket = getEnv("S3_BUCKET", c.S3Bucket)
	c.S3Region = getEnv("S3_REGION", c.S3Region)
	c.S3Endpoint = getEnv("S3_ENDPOINT", c.S3Endpoint)
	c.S3AccessKey = getEnv("S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = getEnv("S3_SECRET_KEY", c.S3SecretKey)
	c.S3PublicURL = getEnv("S3_PUBLIC_URL", c.S3PublicURL)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	if len(e.errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(e.errs...))
	}
	return nil
}

// applyFlags overlays the few settings that are handy to change per run.
func (c *Config) applyFlags(args []string) error {
	flags := flag.NewFlagSet("roomchat", flag.ContinueOnError)

	flags.IntVar(&c.Port, "port", c.Port, "HTTP listen port")
	flags.StringVar(&c.DBPath, "db", c.DBPath, "SQLite database path")
	flags.StringVar(&c.BroadcastScope, "scope", c.BroadcastScope, `broadcast scope: "all" or "room"`)
	flags.BoolVar(&c.BindSender, "bind-sender", c.BindSender, "replace the client-supplied sender with the session name")
	flags.StringVar(&c.AvatarBackend, "avatars", c.AvatarBackend, `avatar backend: "local" or "s3"`)
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")

	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("config: parsing flags: %w", err)
	}
	return nil
}

// Validate reports every setting that cannot work.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH is required"))
	}
	if len(c.SessionSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d characters", MinSecretLength))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.BroadcastScope != "all" && c.BroadcastScope != "room" {
		errs = append(errs, fmt.Errorf("BROADCAST_SCOPE %q must be \"all\" or \"room\"", c.BroadcastScope))
	}
	if c.PersistWorkers < 1 {
		errs = append(errs, errors.New("PERSIST_WORKERS must be at least 1"))
	}
	if c.PersistQueue < 1 {
		errs = append(errs, errors.New("PERSIST_QUEUE must be at least 1"))
	}
	if c.MaxMessageBytes < 64 {
		errs = append(errs, errors.New("MAX_MESSAGE_BYTES must be at least 64"))
	}
	if c.RateBurst < 1 || c.RateInterval <= 0 {
		errs = append(errs, errors.New("RATE_BURST and RATE_INTERVAL must be positive"))
	}

	switch c.AvatarBackend {
	case "local":
		if c.AvatarDir == "" {
			errs = append(errs, errors.New("AVATAR_DIR is required for the local avatar backend"))
		}
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 avatar backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("AVATAR_BACKEND %q must be \"local\" or \"s3\"", c.AvatarBackend))
	}

	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be \"text\" or \"json\"", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// String returns a loggable summary with secrets masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, DB: %s, Scope: %s, BindSender: %t, Workers: %d, Queue: %d, Avatars: %s, Session: %s (secret %s), S3 key: %s}",
		c.Port, c.DBPath, c.BroadcastScope, c.BindSender, c.PersistWorkers, c.PersistQueue,
		c.AvatarBackend, c.SessionTTL, mask(c.SessionSecret), mask(c.S3SecretKey),
	)
}

func mask(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	return "***"
}
