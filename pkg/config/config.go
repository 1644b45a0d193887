package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env       string
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	GigaChat  GigaChatConfig
	Embedding EmbeddingConfig
	Chunker   ChunkerConfig
	Ingest    IngestConfig
	Quota     QuotaConfig
	Retrieval RetrievalConfig
	Logger    LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	UploadDir    string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
	RefreshExp time.Duration
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	Model              string
	BaseURL            string
	InsecureSkipVerify bool
}

type EmbeddingConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	Timeout       time.Duration
	AllowFallback bool
	FallbackDim   int
}

type ChunkerConfig struct {
	TargetSize int
	Overlap    int
}

type IngestConfig struct {
	Workers   int
	QueueSize int
}

type QuotaConfig struct {
	DefaultMonthly int64
}

type RetrievalConfig struct {
	TopK int
}

func Load() (*Config, error) {
	// Try to load .env file from current directory or project root
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}
	// No .env file is fine: plain environment variables work for Docker/K8s.

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))
	jwtExp, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))
	refreshExp, _ := strconv.Atoi(getEnv("JWT_REFRESH_EXPIRATION_HOURS", "168"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	embedTimeout, _ := strconv.Atoi(getEnv("EMBEDDING_TIMEOUT", "30"))
	fallbackDim, _ := strconv.Atoi(getEnv("EMBEDDING_FALLBACK_DIM", "256"))
	targetSize, _ := strconv.Atoi(getEnv("CHUNK_TARGET_SIZE", "500"))
	overlap, _ := strconv.Atoi(getEnv("CHUNK_OVERLAP", "50"))
	workers, _ := strconv.Atoi(getEnv("INGEST_WORKERS", "3"))
	queueSize, _ := strconv.Atoi(getEnv("INGEST_QUEUE_SIZE", "64"))
	defaultQuota, _ := strconv.ParseInt(getEnv("QUOTA_DEFAULT_MONTHLY", "100000"), 10, 64)
	topK, _ := strconv.Atoi(getEnv("RETRIEVAL_TOP_K", "5"))
	insecureSkipVerify := getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "true") == "true"
	allowFallback := getEnv("EMBEDDING_ALLOW_FALLBACK", "false") == "true"

	return &Config{
		Env: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
			UploadDir:    getEnv("UPLOAD_DIR", "uploads"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "knova"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			SecretKey:  getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			Expiration: time.Duration(jwtExp) * time.Hour,
			RefreshExp: time.Duration(refreshExp) * time.Hour,
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			Model:              getEnv("GIGACHAT_MODEL", "GigaChat"),
			BaseURL:            getEnv("GIGACHAT_BASE_URL", "https://gigachat.devices.sberbank.ru/api/v1"),
			InsecureSkipVerify: insecureSkipVerify,
		},
		Embedding: EmbeddingConfig{
			BaseURL:       getEnv("EMBEDDING_BASE_URL", ""),
			APIKey:        getEnv("EMBEDDING_API_KEY", ""),
			Model:         getEnv("EMBEDDING_MODEL", "Embeddings"),
			Timeout:       time.Duration(embedTimeout) * time.Second,
			AllowFallback: allowFallback,
			FallbackDim:   fallbackDim,
		},
		Chunker: ChunkerConfig{
			TargetSize: targetSize,
			Overlap:    overlap,
		},
		Ingest: IngestConfig{
			Workers:   workers,
			QueueSize: queueSize,
		},
		Quota: QuotaConfig{
			DefaultMonthly: defaultQuota,
		},
		Retrieval: RetrievalConfig{
			TopK: topK,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
