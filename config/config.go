package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port      string
	JWTKey    string
	SaltRound int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTLs in seconds for the Redis-backed job records
	JobStatusTTL  int // live progress record
	JobResultTTL  int // terminal result record, outlives progress
	WsRegistryTTL int // websocket watcher registry entries

	IngestWorkers     int // worker pool size for package ingestion
	IngestMaxAttempts int // whole-job re-enqueue budget before permanently failed

	UploadDir      string // temp area for incoming uploads
	WorkspaceDir   string // temp area for archive extraction
	ContentDir     string // final home of extracted package content
	ContentBaseURL string // public prefix content is served under

	EmailSender string
	Password    string // SMTP Password
}

// AppConfig is a global variable to access configuration
var AppConfig *Config

// LoadConfig initializes configuration from environment variables or defaults
func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found. Using system environment variables.")
	}

	// Initialize AppConfig with values from environment variables
	AppConfig = &Config{
		Port:      getEnv("PORT", "3000"),
		JWTKey:    getEnv("JWT_SECRET_KEY", "defaultSecret"),
		SaltRound: getEnvInt("SALT_ROUND", 10),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JobStatusTTL:  getEnvInt("JOB_STATUS_TTL", 3600),
		JobResultTTL:  getEnvInt("JOB_RESULT_TTL", 86400),
		WsRegistryTTL: getEnvInt("WS_REGISTRY_TTL", 86400),

		IngestWorkers:     getEnvInt("INGEST_WORKERS", 2),
		IngestMaxAttempts: getEnvInt("INGEST_MAX_ATTEMPTS", 3),

		UploadDir:      getEnv("UPLOAD_DIR", "./storage/uploads"),
		WorkspaceDir:   getEnv("WORKSPACE_DIR", "./storage/workspace"),
		ContentDir:     getEnv("CONTENT_DIR", "./public/content"),
		ContentBaseURL: getEnv("CONTENT_BASE_URL", "/content"),

		EmailSender: getEnv("EMAIL_SENDER", ""),
		Password:    getEnv("PASSWORD", ""),
	}

	// Validate critical configuration
	if AppConfig.JWTKey == "defaultSecret" {
		log.Println("Warning: Using default JWT_SECRET_KEY. Update it in your environment.")
	}
	if AppConfig.EmailSender == "" {
		log.Println("Warning: EMAIL_SENDER not set. Job outcome emails are disabled.")
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns the default integer value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to int: %v", key, err)
		return defaultValue
	}
	return intValue
}
