// Package config загружает настройки сервиса из окружения (и необязательного .env)
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultSecretKey: ключ для локальной разработки
const DefaultSecretKey = "dev-key"

// Config хранит настройки HTTP-сервиса и команд cmd/app
type Config struct {
	Security SecurityConfig
	HTTP     HTTPConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Logging  LoggingConfig
}

// SecurityConfig: ключ, режим отладки, допустимые Host и origin
type SecurityConfig struct {
	SecretKey          string   `env:"SECRET_KEY,DJANGO_SECRET_KEY" env-default:"dev-key" env-description:"service secret key"`
	Debug              bool     `env:"DEBUG,DJANGO_DEBUG" env-default:"true" env-description:"debug logging and error details in 500 responses"`
	AllowedHosts       []string `env:"ALLOWED_HOSTS" env-default:"*" env-description:"comma-separated list of accepted Host headers"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-default:"http://localhost:5173" env-description:"comma-separated CORS allow-list"`
}

// HTTPConfig задаёт параметры HTTP-сервера
type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR" env-default:":8080" env-description:"listen address"`
	MaxUploadSize   int64         `env:"UPLOAD_MAX_FILE_SIZE" env-default:"10485760" env-description:"maximum import request size in bytes"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s" env-description:"graceful shutdown timeout"`
}

// DatabaseConfig описывает подключение к Postgres
type DatabaseConfig struct {
	Host          string        `env:"DB_HOST" env-default:"localhost"`
	Port          int           `env:"DB_PORT" env-default:"5432"`
	Name          string        `env:"DB_NAME" env-default:"app"`
	User          string        `env:"DB_USER" env-default:"app"`
	Password      string        `env:"DB_PASSWORD" env-default:"app"`
	SSLMode       string        `env:"DB_SSLMODE" env-default:"disable"`
	WaitTimeout   time.Duration `env:"DB_WAIT_TIMEOUT" env-default:"120s" env-description:"how long to wait for the database at startup"`
	WaitInterval  time.Duration `env:"DB_WAIT_INTERVAL" env-default:"2s"`
	MigrationsDir string        `env:"MIGRATIONS_DIR" env-default:"migrations/postgres"`
}

// DSN возвращает строку подключения для lib/pq
func (c DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisConfig: кэш статей; пустой адрес отключает кэш
type RedisConfig struct {
	Addr string        `env:"REDIS_ADDR" env-default:"localhost:6379" env-description:"redis address, empty disables the cache"`
	TTL  time.Duration `env:"REDIS_TTL" env-default:"1m"`
}

// NATSConfig: журнал событий; пустой URL отключает публикацию
type NATSConfig struct {
	URL     string `env:"NATS_URL" env-default:"nats://localhost:4222" env-description:"nats url, empty disables event publishing"`
	Subject string `env:"NATS_SUBJECT" env-default:"articles"`
}

type LoggingConfig struct {
	Format string `env:"LOG_FORMAT" env-default:"text" env-description:"text or json"`
}

// ConsumerConfig настраивает cmd/consumer
type ConsumerConfig struct {
	NATS          NATSConfig
	Logging       LoggingConfig
	Debug         bool          `env:"DEBUG,DJANGO_DEBUG" env-default:"false"`
	ClickHouseDSN string        `env:"CLICKHOUSE_DSN" env-description:"clickhouse connection string"`
	BatchSize     int           `env:"BATCH_SIZE" env-default:"10"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" env-default:"5s"`
	Port          int           `env:"CONSUMER_PORT" env-default:"8081"`
	MigrationsDir string        `env:"CLICKHOUSE_MIGRATIONS_DIR" env-default:"migrations/clickhouse"`
}

// loadDotEnv подгружает переменные из файлов, не перезаписывая уже заданные.
// Без аргументов пробует .env и молча пропускает его отсутствие
func loadDotEnv(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to read env files: %w", err)
	}
	return nil
}

// Load читает Config из окружения и проверяет его
func Load(envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles); err != nil {
		return nil, err
	}
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg.Security.AllowedHosts = cleanList(cfg.Security.AllowedHosts)
	cfg.Security.CORSAllowedOrigins = cleanList(cfg.Security.CORSAllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConsumer читает ConsumerConfig из окружения и проверяет его
func LoadConsumer(envFiles ...string) (*ConsumerConfig, error) {
	if err := loadDotEnv(envFiles); err != nil {
		return nil, err
	}
	var cfg ConsumerConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Describe возвращает список переменных окружения с описаниями и значениями по умолчанию
func Describe() (string, error) {
	header := "Environment variables:"
	return cleanenv.GetDescription(&Config{}, &header)
}

// UsesDefaultSecret сообщает, что ключ не задан явно
func (c *Config) UsesDefaultSecret() bool {
	return c.Security.SecretKey == DefaultSecretKey
}

// Validate проверяет настройки и возвращает все найденные проблемы разом
func (c *Config) Validate() error {
	var errs []string
	if strings.TrimSpace(c.Security.SecretKey) == "" {
		errs = append(errs, "SECRET_KEY must not be empty")
	}
	if len(c.Security.AllowedHosts) == 0 {
		errs = append(errs, "ALLOWED_HOSTS must list at least one host")
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, "HTTP_ADDR is required")
	}
	if c.HTTP.MaxUploadSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, "HTTP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Database.Host == "" || c.Database.Name == "" || c.Database.User == "" {
		errs = append(errs, "DB_HOST, DB_NAME and DB_USER are required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT (%d) must be 1-65535", c.Database.Port))
	}
	if c.Database.WaitTimeout <= 0 || c.Database.WaitInterval <= 0 {
		errs = append(errs, "DB_WAIT_TIMEOUT and DB_WAIT_INTERVAL must be positive")
	}
	if c.Redis.Addr != "" && c.Redis.TTL <= 0 {
		errs = append(errs, "REDIS_TTL must be positive")
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		errs = append(errs, "NATS_SUBJECT is required when NATS_URL is set")
	}
	errs = append(errs, validateFormat(c.Logging.Format)...)
	return joinErrors(errs)
}

// Validate проверяет настройки consumer
func (c *ConsumerConfig) Validate() error {
	var errs []string
	if c.ClickHouseDSN == "" {
		errs = append(errs, "CLICKHOUSE_DSN is required")
	}
	if c.NATS.URL == "" || c.NATS.Subject == "" {
		errs = append(errs, "NATS_URL and NATS_SUBJECT are required")
	}
	if c.BatchSize <= 0 {
		errs = append(errs, "BATCH_SIZE must be positive")
	}
	if c.FlushInterval <= 0 {
		errs = append(errs, "FLUSH_INTERVAL must be positive")
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("CONSUMER_PORT (%d) must be 1-65535", c.Port))
	}
	errs = append(errs, validateFormat(c.Logging.Format)...)
	return joinErrors(errs)
}

func validateFormat(format string) []string {
	switch strings.ToLower(format) {
	case "text", "json":
		return nil
	}
	return []string{fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", format)}
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
