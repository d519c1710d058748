package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTP      HTTPConfig
	GRPC      GRPCConfig
	MySQL     MySQLConfig
	JWT       JWTConfig
	Password  PasswordConfig
	Mail      MailConfig
	Avatar    AvatarConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
	Contacts  ContactsConfig
	Log       LogConfig
}

type HTTPConfig struct {
	Host        string
	Port        string
	CORSOrigins []string
}

type GRPCConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN string
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ConfirmTokenTTL time.Duration
}

type PasswordConfig struct {
	Policy PasswordPolicy
}

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	SSL      bool
	// BaseURL is the public address used to build confirmation links.
	BaseURL string
}

// Enabled reports whether an SMTP server is configured.
func (m MailConfig) Enabled() bool {
	return strings.TrimSpace(m.Host) != ""
}

type AvatarConfig struct {
	Gravatar bool
	Verify   bool
	Timeout  time.Duration
}

type StorageConfig struct {
	Region          string
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
	UsePathStyle    bool
}

// Enabled reports whether an object storage bucket is configured.
func (s StorageConfig) Enabled() bool {
	return strings.TrimSpace(s.Bucket) != ""
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type ContactsConfig struct {
	DefaultPhoneRegion string
}

type LogConfig struct {
	Level  string
	Format string
}

type PasswordPolicy struct {
	MinLength         int
	MaxLength         int
	UsernameMinLength int
	UsernameMaxLength int
}

func (p PasswordPolicy) Validate(password string) error {
	length := utf8.RuneCountInString(password)
	if length < p.MinLength {
		return fmt.Errorf("password must be at least %d characters long", p.MinLength)
	}
	if p.MaxLength > 0 && length > p.MaxLength {
		return fmt.Errorf("password must be at most %d characters long", p.MaxLength)
	}

	return nil
}

func (p PasswordPolicy) ValidateUsername(username string) error {
	length := utf8.RuneCountInString(strings.TrimSpace(username))
	if length < p.UsernameMinLength {
		return fmt.Errorf("username must be at least %d characters long", p.UsernameMinLength)
	}
	if p.UsernameMaxLength > 0 && length > p.UsernameMaxLength {
		return fmt.Errorf("username must be at most %d characters long", p.UsernameMaxLength)
	}

	return nil
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	httpPort := getEnv("HTTP_PORT", "8000")

	return &Config{
		HTTP: HTTPConfig{
			Host:        getEnv("HTTP_HOST", "0.0.0.0"),
			Port:        httpPort,
			CORSOrigins: getListEnv("CORS_ORIGINS", []string{"http://localhost:3000"}),
		},
		GRPC: GRPCConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN: mysqlDSN,
		},
		JWT: JWTConfig{
			Secret:          jwtSecret,
			AccessTokenTTL:  getDurationEnv("JWT_ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL: getDurationEnv("JWT_REFRESH_TOKEN_TTL", 7*24*time.Hour),
			ConfirmTokenTTL: getDurationEnv("CONFIRM_TOKEN_TTL", 7*24*time.Hour),
		},
		Password: PasswordConfig{
			Policy: loadPasswordPolicy(),
		},
		Mail: MailConfig{
			Host:     getEnv("MAIL_SERVER", ""),
			Port:     getIntEnv("MAIL_PORT", 465),
			Username: getEnv("MAIL_USERNAME", ""),
			Password: getEnv("MAIL_PASSWORD", ""),
			From:     getEnv("MAIL_FROM", getEnv("MAIL_USERNAME", "")),
			FromName: getEnv("MAIL_FROM_NAME", "Contacts"),
			SSL:      getBoolEnv("MAIL_SSL_TLS", true),
			BaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+httpPort), "/"),
		},
		Avatar: AvatarConfig{
			Gravatar: getBoolEnv("AVATAR_GRAVATAR", true),
			Verify:   getBoolEnv("AVATAR_VERIFY", false),
			Timeout:  getSecondsEnv("AVATAR_TIMEOUT", 3*time.Second),
		},
		Storage: StorageConfig{
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Bucket:          getEnv("S3_BUCKET", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			PublicBaseURL:   strings.TrimRight(getEnv("S3_PUBLIC_BASE_URL", ""), "/"),
			UsePathStyle:    getBoolEnv("S3_USE_PATH_STYLE", true),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 10),
			Burst:             getIntEnv("RATE_LIMIT_BURST", 10),
		},
		Contacts: ContactsConfig{
			DefaultPhoneRegion: strings.ToUpper(getEnv("CONTACTS_PHONE_REGION", "UA")),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}, nil
}

func (c *Config) DSN() string {
	return c.MySQL.DSN
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func loadPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:         getIntEnv("PASSWORD_MIN_LENGTH", 6),
		MaxLength:         getIntEnv("PASSWORD_MAX_LENGTH", 10),
		UsernameMinLength: getIntEnv("USERNAME_MIN_LENGTH", 5),
		UsernameMaxLength: getIntEnv("USERNAME_MAX_LENGTH", 16),
	}
}
