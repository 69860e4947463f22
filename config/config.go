package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// StageQueues names the Redis lists backing one pipeline stage.
type StageQueues struct {
	Pending    string
	Processing string
	Failed     string
}

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	HarvestQueues    StageQueues
	ChunkQueues      StageQueues
	ResolutionQueues StageQueues
	UploadQueues     StageQueues

	HarvestWorkers    int
	ChunkWorkers      int
	ResolutionWorkers int
	UploadWorkers     int

	S3Region       string
	AWSAccessKey   string
	AWSSecretKey   string
	S3Endpoint     string
	S3UsePathStyle bool

	WorkRoot      string
	ChunkDuration int
	FFmpegPath    string
	Environment   string

	DatabaseURL string

	JobTimeout  int
	MetricsPort string
	LogLevel    string
	LogPretty   bool
}

// Load reads configuration from the environment, with an optional .env file in
// the working directory. Missing values fall back to defaults suitable for
// local development.
func Load() *Config {
	_ = godotenv.Load()

	redisPrefix := getEnv("REDIS_PREFIX", "")

	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_DATABASE", "marsha")
	dbUser := getEnv("DB_USERNAME", "marsha")
	dbPassword := getEnv("DB_PASSWORD", "")
	dbSSLMode := getEnv("DB_SSLMODE", "disable")

	// lib/pq supports "key=value" connection strings and this avoids
	// URI escaping issues for special characters in passwords.
	var dbURL string
	if dbPassword != "" {
		dbURL = fmt.Sprintf(
			"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
			dbHost, dbPort, dbName, dbUser, dbPassword, dbSSLMode,
		)
	} else {
		dbURL = fmt.Sprintf(
			"host=%s port=%s dbname=%s user=%s sslmode=%s",
			dbHost, dbPort, dbName, dbUser, dbSSLMode,
		)
	}

	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_VOD_DB", 2),
		RedisPrefix:   redisPrefix,

		HarvestQueues:    stageQueues(getEnv("VOD_HARVEST_QUEUE", "vod:harvest"), redisPrefix),
		ChunkQueues:      stageQueues(getEnv("VOD_CHUNK_QUEUE", "vod:chunks"), redisPrefix),
		ResolutionQueues: stageQueues(getEnv("VOD_RESOLUTION_QUEUE", "vod:resolutions"), redisPrefix),
		UploadQueues:     stageQueues(getEnv("VOD_UPLOAD_QUEUE", "vod:uploads"), redisPrefix),

		HarvestWorkers:    getEnvInt("VOD_HARVEST_WORKERS", 1),
		ChunkWorkers:      getEnvInt("VOD_CHUNK_WORKERS", 4),
		ResolutionWorkers: getEnvInt("VOD_RESOLUTION_WORKERS", 2),
		UploadWorkers:     getEnvInt("VOD_UPLOAD_WORKERS", 1),

		// Prefer unified S3_* vars, fall back to legacy AWS_* vars for compatibility
		S3Region:       getEnvWithFallback("S3_REGION", "AWS_DEFAULT_REGION", "eu-west-1"),
		AWSAccessKey:   getEnvWithFallback("S3_KEY", "AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnvWithFallback("S3_SECRET", "AWS_SECRET_ACCESS_KEY", ""),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3UsePathStyle: getEnvBool("S3_USE_PATH_STYLE_ENDPOINT", false),

		WorkRoot:      getEnv("VOD_WORK_ROOT", "/mnt/transcoded_video"),
		ChunkDuration: getEnvInt("CHUNK_DURATION", 60),
		FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
		Environment:   getEnv("ENVIRONMENT", "production"),

		DatabaseURL: dbURL,

		JobTimeout:  getEnvInt("VOD_JOB_TIMEOUT", 900),
		MetricsPort: getEnv("METRICS_PORT", "8090"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvBool("LOG_PRETTY", false),
	}
}

// stageQueues derives the processing and failed list names from a stage's
// pending list name: "<base>", "<base>:processing", "<base>:failed".
func stageQueues(base string, prefix string) StageQueues {
	base = applyPrefix(base, prefix)
	return StageQueues{
		Pending:    base,
		Processing: base + ":processing",
		Failed:     base + ":failed",
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvWithFallback(primaryKey, secondaryKey, fallback string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	if value := os.Getenv(secondaryKey); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func applyPrefix(key string, prefix string) string {
	if prefix == "" {
		return key
	}
	return prefix + key
}
