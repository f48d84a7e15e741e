package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"social-story-server/pkg/ai"
	"social-story-server/pkg/logger"
	"social-story-server/pkg/taskmanager"
)

// Config содержит конфигурацию приложения
type Config struct {
	Env      string `env:"APP_ENV" env-default:"development"`
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	AI       ai.Config
	ImageGen ImageGenConfig
	Storage  StorageConfig
	Batch    BatchConfig
	CORS     CORSConfig
	Logger   logger.Config
	Tasks    taskmanager.Config
}

// ServerConfig содержит конфигурацию HTTP-сервера
type ServerConfig struct {
	Port            string        `env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// PostgresConfig содержит конфигурацию подключения к PostgreSQL
type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `env:"POSTGRES_PORT" env-default:"5432"`
	User     string `env:"POSTGRES_USER" env-default:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" env-default:"postgres"`
	DBName   string `env:"POSTGRES_DB" env-default:"social_story"`
	SSLMode  string `env:"POSTGRES_SSL_MODE" env-default:"disable"`
	MaxConns int32  `env:"POSTGRES_MAX_CONNS" env-default:"10"`
}

// DSN собирает строку подключения к PostgreSQL.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// RedisConfig содержит конфигурацию подключения к Redis
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

// ImageGenConfig содержит конфигурацию сервиса генерации изображений
type ImageGenConfig struct {
	BaseURL string        `env:"IMAGEGEN_BASE_URL" env-default:"http://localhost:8002"`
	Timeout time.Duration `env:"IMAGEGEN_TIMEOUT" env-default:"120s"`
}

// StorageConfig содержит конфигурацию хранилища изображений
type StorageConfig struct {
	// Каталог на диске, куда складываются сгенерированные изображения
	Dir string `env:"STORAGE_DIR" env-default:"./data/images"`
	// Публичный префикс URL, под которым каталог раздается наружу
	PublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL" env-default:"/static/images"`
}

// BatchConfig содержит настройки конвейера генерации сцен
type BatchConfig struct {
	// Максимум одновременно генерируемых сцен в одном батче
	SceneConcurrency int `env:"BATCH_SCENE_CONCURRENCY" env-default:"2"`
	// Время жизни записи прогресса батча в Redis
	ProgressTTL time.Duration `env:"BATCH_PROGRESS_TTL" env-default:"1h"`
}

// CORSConfig содержит конфигурацию CORS
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-default:"http://localhost:3000,http://localhost:5173"`
}

// Load загружает конфигурацию из .env (если он есть) и переменных окружения
func Load() (*Config, error) {
	// .env нужен только для локальной разработки, его отсутствие не ошибка
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}
	return &cfg, nil
}
