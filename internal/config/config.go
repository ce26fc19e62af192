// Пакет config — загрузка и валидация конфигурации сервиса tempshare
// из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bigkaa/tempshare/internal/domain/policy"
	"github.com/bigkaa/tempshare/internal/storage/objectstore"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Backend-ы объектного хранилища.
const (
	StorageS3 = "s3"
	StorageFS = "fs"
)

// Backend-ы хранилища токенов скачивания.
const (
	TokensMemory = "memory"
	TokensRedis  = "redis"
)

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Базовый URL публичных ссылок на файлы (без завершающего '/')
	PublicBaseURL string
	// Путь к TLS сертификату (опционально)
	TLSCert string
	// Путь к TLS приватному ключу (опционально)
	TLSKey string

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Backend объектного хранилища: s3 или fs
	StorageBackend string
	S3Bucket       string
	S3Region       string
	// Нестандартный endpoint (R2, MinIO)
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3ForcePathStyle  bool
	// Корневая директория backend-а fs
	FSRoot string

	// PostgreSQL
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	// DBMaxConns — размер пула подключений
	DBMaxConns int32
	// DBStartupTimeout — сколько ждать PostgreSQL при старте
	DBStartupTimeout time.Duration

	// Политика приёма файлов
	MaxFileSize       int64
	ChunkSize         int64
	DirectUploadLimit int64
	MimeWildcards     bool

	// Интервал очистки просроченных файлов и брошенных сессий
	SweepInterval time.Duration
	// Число параллельных удалений при очистке
	SweepConcurrency int
	// Возраст, после которого сессия multipart-загрузки считается брошенной
	SessionTTL time.Duration

	// Хранилище токенов скачивания: memory или redis
	TokenBackend   string
	TokenTTL       time.Duration
	TokenCacheSize int
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Секрет для вызова /api/cron/clear
	CronSecret string
	// JWKS для JWT-авторизации служебных вызовов (опционально)
	JWKSUrl   string
	JWTLeeway time.Duration

	// Уведомления о загрузках
	WebhookURL     string
	WebhookTimeout time.Duration
	KafkaBrokers   []string
	KafkaTopic     string

	// Путь к ffmpeg; пустое значение отключает превью видео
	FFmpegPath string
	// Максимальный размер видео, для которого строится превью
	ThumbnailMaxSource int64

	// TTL кэша списка доменов
	DomainCacheTTL time.Duration

	// topologymetrics
	ServiceID              string
	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Перед разбором подгружается dotenv-файл (TS_ENV_FILE или .env), если он есть.
// Переменные окружения процесса имеют приоритет над файлом.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error

	// TS_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("TS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("TS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("TS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// TS_PUBLIC_BASE_URL — обязательный
	base, err := getEnvRequired("TS_PUBLIC_BASE_URL")
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("TS_PUBLIC_BASE_URL: некорректный URL %q", base)
	}
	cfg.PublicBaseURL = strings.TrimRight(base, "/")

	// TLS включается, только если заданы оба файла
	cfg.TLSCert = getEnvDefault("TS_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("TS_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("TS_TLS_CERT и TS_TLS_KEY задаются только вместе")
	}

	if cfg.HTTPReadTimeout, err = getEnvDuration("TS_HTTP_READ_TIMEOUT", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("TS_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("TS_HTTP_WRITE_TIMEOUT", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("TS_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("TS_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("TS_HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("TS_SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("TS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// TS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("TS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("TS_LOG_LEVEL: %w", err)
	}

	// TS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("TS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("TS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	if err := cfg.loadStorage(); err != nil {
		return nil, err
	}
	if err := cfg.loadDatabase(); err != nil {
		return nil, err
	}
	if err := cfg.loadPolicy(); err != nil {
		return nil, err
	}
	if err := cfg.loadSweep(); err != nil {
		return nil, err
	}
	if err := cfg.loadTokens(); err != nil {
		return nil, err
	}
	if err := cfg.loadIntegrations(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) loadStorage() error {
	var err error

	// TS_STORAGE_BACKEND — s3 (по умолчанию) или fs
	cfg.StorageBackend = getEnvDefault("TS_STORAGE_BACKEND", StorageS3)
	switch cfg.StorageBackend {
	case StorageS3:
		cfg.S3Bucket, err = getEnvRequired("TS_S3_BUCKET")
		if err != nil {
			return err
		}
	case StorageFS:
	default:
		return fmt.Errorf("TS_STORAGE_BACKEND: недопустимое значение %q, допустимые: s3, fs", cfg.StorageBackend)
	}

	cfg.S3Region = getEnvDefault("TS_S3_REGION", "auto")
	cfg.S3Endpoint = getEnvDefault("TS_S3_ENDPOINT", "")
	cfg.S3AccessKeyID = getEnvDefault("TS_S3_ACCESS_KEY_ID", "")
	cfg.S3SecretAccessKey = getEnvDefault("TS_S3_SECRET_ACCESS_KEY", "")
	if (cfg.S3AccessKeyID == "") != (cfg.S3SecretAccessKey == "") {
		return fmt.Errorf("TS_S3_ACCESS_KEY_ID и TS_S3_SECRET_ACCESS_KEY задаются только вместе")
	}
	if cfg.S3ForcePathStyle, err = getEnvBool("TS_S3_FORCE_PATH_STYLE", false); err != nil {
		return fmt.Errorf("TS_S3_FORCE_PATH_STYLE: %w", err)
	}
	cfg.FSRoot = getEnvDefault("TS_FS_ROOT", "./data")
	return nil
}

func (cfg *Config) loadDatabase() error {
	var err error

	cfg.DBHost = getEnvDefault("TS_DB_HOST", "localhost")
	if cfg.DBPort, err = getEnvInt("TS_DB_PORT", 5432); err != nil {
		return fmt.Errorf("TS_DB_PORT: %w", err)
	}
	cfg.DBName = getEnvDefault("TS_DB_NAME", "tempshare")
	cfg.DBUser = getEnvDefault("TS_DB_USER", "tempshare")

	// TS_DB_PASSWORD — обязательный
	if cfg.DBPassword, err = getEnvRequired("TS_DB_PASSWORD"); err != nil {
		return err
	}

	cfg.DBSSLMode = getEnvDefault("TS_DB_SSL_MODE", "disable")
	validModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if !validModes[cfg.DBSSLMode] {
		return fmt.Errorf("TS_DB_SSL_MODE: недопустимое значение %q", cfg.DBSSLMode)
	}

	maxConns, err := getEnvInt("TS_DB_MAX_CONNS", 10)
	if err != nil {
		return fmt.Errorf("TS_DB_MAX_CONNS: %w", err)
	}
	if maxConns < 1 || maxConns > 1000 {
		return fmt.Errorf("TS_DB_MAX_CONNS: значение %d вне диапазона 1-1000", maxConns)
	}
	cfg.DBMaxConns = int32(maxConns) //nolint:gosec // ограничено 1000

	if cfg.DBStartupTimeout, err = getEnvDuration("TS_DB_STARTUP_TIMEOUT", 30*time.Second); err != nil {
		return fmt.Errorf("TS_DB_STARTUP_TIMEOUT: %w", err)
	}
	return nil
}

func (cfg *Config) loadPolicy() error {
	var err error

	if cfg.MaxFileSize, err = getEnvInt64("TS_MAX_FILE_SIZE", policy.DefaultMaxFileSize); err != nil {
		return fmt.Errorf("TS_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize < policy.MinFileSize {
		return fmt.Errorf("TS_MAX_FILE_SIZE: значение должно быть положительным")
	}

	if cfg.ChunkSize, err = getEnvInt64("TS_CHUNK_SIZE", policy.DefaultChunkSize); err != nil {
		return fmt.Errorf("TS_CHUNK_SIZE: %w", err)
	}
	if cfg.ChunkSize < policy.MinChunkSize {
		return fmt.Errorf("TS_CHUNK_SIZE: значение %d меньше минимального размера части %d", cfg.ChunkSize, policy.MinChunkSize)
	}

	if cfg.DirectUploadLimit, err = getEnvInt64("TS_DIRECT_UPLOAD_LIMIT", policy.DefaultDirectUploadLimit); err != nil {
		return fmt.Errorf("TS_DIRECT_UPLOAD_LIMIT: %w", err)
	}
	if cfg.DirectUploadLimit < policy.MinFileSize {
		return fmt.Errorf("TS_DIRECT_UPLOAD_LIMIT: значение должно быть положительным")
	}

	if cfg.MimeWildcards, err = getEnvBool("TS_MIME_WILDCARDS", false); err != nil {
		return fmt.Errorf("TS_MIME_WILDCARDS: %w", err)
	}

	// Файл максимального размера должен укладываться в лимит частей хранилища
	if chunks := cfg.Policy().TotalChunks(cfg.MaxFileSize); chunks > objectstore.MaxPartNumber {
		return fmt.Errorf("TS_CHUNK_SIZE: файл размером %d требует %d частей, допустимо не более %d",
			cfg.MaxFileSize, chunks, objectstore.MaxPartNumber)
	}
	return nil
}

func (cfg *Config) loadSweep() error {
	var err error

	if cfg.SweepInterval, err = getEnvDuration("TS_SWEEP_INTERVAL", time.Hour); err != nil {
		return fmt.Errorf("TS_SWEEP_INTERVAL: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		return fmt.Errorf("TS_SWEEP_INTERVAL: значение должно быть положительным")
	}
	if cfg.SweepConcurrency, err = getEnvInt("TS_SWEEP_CONCURRENCY", 8); err != nil {
		return fmt.Errorf("TS_SWEEP_CONCURRENCY: %w", err)
	}
	if cfg.SweepConcurrency < 1 {
		return fmt.Errorf("TS_SWEEP_CONCURRENCY: значение должно быть >= 1")
	}
	if cfg.SessionTTL, err = getEnvDuration("TS_SESSION_TTL", 24*time.Hour); err != nil {
		return fmt.Errorf("TS_SESSION_TTL: %w", err)
	}
	if cfg.SessionTTL < time.Hour {
		return fmt.Errorf("TS_SESSION_TTL: значение %s меньше 1h", cfg.SessionTTL)
	}
	return nil
}

func (cfg *Config) loadTokens() error {
	var err error

	cfg.TokenBackend = getEnvDefault("TS_TOKEN_BACKEND", TokensMemory)
	if cfg.TokenBackend != TokensMemory && cfg.TokenBackend != TokensRedis {
		return fmt.Errorf("TS_TOKEN_BACKEND: недопустимое значение %q, допустимые: memory, redis", cfg.TokenBackend)
	}
	if cfg.TokenTTL, err = getEnvDuration("TS_TOKEN_TTL", 5*time.Minute); err != nil {
		return fmt.Errorf("TS_TOKEN_TTL: %w", err)
	}
	if cfg.TokenTTL <= 0 {
		return fmt.Errorf("TS_TOKEN_TTL: значение должно быть положительным")
	}
	if cfg.TokenCacheSize, err = getEnvInt("TS_TOKEN_CACHE_SIZE", 10000); err != nil {
		return fmt.Errorf("TS_TOKEN_CACHE_SIZE: %w", err)
	}
	if cfg.TokenCacheSize < 1 {
		return fmt.Errorf("TS_TOKEN_CACHE_SIZE: значение должно быть >= 1")
	}
	cfg.RedisAddr = getEnvDefault("TS_REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnvDefault("TS_REDIS_PASSWORD", "")
	if cfg.RedisDB, err = getEnvInt("TS_REDIS_DB", 0); err != nil {
		return fmt.Errorf("TS_REDIS_DB: %w", err)
	}
	return nil
}

func (cfg *Config) loadIntegrations() error {
	var err error

	cfg.CronSecret = getEnvDefault("TS_CRON_SECRET", "")
	cfg.JWKSUrl = getEnvDefault("TS_JWKS_URL", "")
	if cfg.JWTLeeway, err = getEnvDuration("TS_JWT_LEEWAY", 5*time.Second); err != nil {
		return fmt.Errorf("TS_JWT_LEEWAY: %w", err)
	}

	cfg.WebhookURL = getEnvDefault("TS_WEBHOOK_URL", "")
	if cfg.WebhookTimeout, err = getEnvDuration("TS_WEBHOOK_TIMEOUT", 10*time.Second); err != nil {
		return fmt.Errorf("TS_WEBHOOK_TIMEOUT: %w", err)
	}
	cfg.KafkaBrokers = getEnvList("TS_KAFKA_BROKERS")
	cfg.KafkaTopic = getEnvDefault("TS_KAFKA_TOPIC", "tempshare.uploads")

	cfg.FFmpegPath = getEnvDefault("TS_FFMPEG_PATH", "")
	if cfg.ThumbnailMaxSource, err = getEnvInt64("TS_THUMBNAIL_MAX_SOURCE", 256<<20); err != nil {
		return fmt.Errorf("TS_THUMBNAIL_MAX_SOURCE: %w", err)
	}

	if cfg.DomainCacheTTL, err = getEnvDuration("TS_DOMAIN_CACHE_TTL", 5*time.Minute); err != nil {
		return fmt.Errorf("TS_DOMAIN_CACHE_TTL: %w", err)
	}

	cfg.ServiceID = getEnvDefault("TS_SERVICE_ID", "tempshare")
	cfg.DephealthGroup = getEnvDefault("TS_DEPHEALTH_GROUP", "tempshare")
	if cfg.DephealthCheckInterval, err = getEnvDuration("TS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return fmt.Errorf("TS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	return nil
}

// Policy возвращает политику приёма файлов.
func (cfg *Config) Policy() policy.Policy {
	return policy.Policy{
		MaxFileSize:       cfg.MaxFileSize,
		ChunkSize:         cfg.ChunkSize,
		DirectUploadLimit: cfg.DirectUploadLimit,
		AllowWildcards:    cfg.MimeWildcards,
	}
}

// DatabaseDSN возвращает строку подключения для pgxpool.
func (cfg *Config) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s",
		url.UserPassword(cfg.DBUser, cfg.DBPassword).String(),
		cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode)
}

// TLSEnabled сообщает, заданы ли сертификат и ключ.
func (cfg *Config) TLSEnabled() bool {
	return cfg.TLSCert != "" && cfg.TLSKey != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// loadEnvFile подгружает dotenv-файл. Отсутствие файла по умолчанию не ошибка,
// явно указанный через TS_ENV_FILE файл обязан существовать.
func loadEnvFile() error {
	path, explicit := os.LookupEnv("TS_ENV_FILE")
	if !explicit || path == "" {
		path = ".env"
		explicit = false
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("TS_ENV_FILE: не удалось загрузить %q: %w", path, err)
}

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает bool значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// getEnvList разбирает список через запятую, пустые элементы отбрасываются.
func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
