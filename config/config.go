package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"leadpilot/models"
)

var DB *gorm.DB

type Config struct {
	Environment string
	ServerPort  string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	EncryptionKey string
	JWTSecret     string
	SentryDSN     string

	Redis     RedisConfig
	Google    OAuthConfig
	Microsoft OAuthConfig

	RateLimitMax    int
	RateLimitWindow int // seconds
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
}

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		ServerPort:  getEnv("PORT", "5000"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "leadpilot"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		SentryDSN:     getEnv("SENTRY_DSN", ""),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "true") == "true",
			Address:  getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Google: OAuthConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		},
		Microsoft: OAuthConfig{
			ClientID:     getEnv("MICROSOFT_CLIENT_ID", ""),
			ClientSecret: getEnv("MICROSOFT_CLIENT_SECRET", ""),
		},

		RateLimitMax:    getEnvAsInt("RATE_LIMIT_MAX", 120),
		RateLimitWindow: getEnvAsInt("RATE_LIMIT_WINDOW", 60),
	}

	logConfig(cfg)
	return cfg
}

func ConnectDB(cfg *Config) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode,
	)

	logLevel := logger.Silent
	if cfg.Environment == "development" {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := migrateDB(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	DB = db
	log.Println("Database connected and migrated")
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Workspace{},
		&models.WorkspaceMember{},
		&models.Stage{},
		&models.Lead{},
		&models.SuppressionEntry{},
		&models.EmailAccount{},
		&models.EmailMessage{},
		&models.Sequence{},
		&models.SequenceStep{},
		&models.SequenceEnrollment{},
		&models.Workflow{},
		&models.WorkflowRun{},
		&models.ApprovalRequest{},
		&models.Task{},
		&models.Activity{},
		&models.Proposal{},
	)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func maskPassword(s string) string {
	if len(s) <= 2 {
		return "**"
	}
	return s[:1] + strings.Repeat("*", len(s)-2) + s[len(s)-1:]
}

func logConfig(cfg *Config) {
	log.Printf("Environment: %s", cfg.Environment)
	log.Printf("Server port: %s", cfg.ServerPort)
	log.Printf("Database: %s@%s:%s/%s (password: %s)",
		cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName, maskPassword(cfg.DBPassword))
	log.Printf("Redis enabled: %v (%s)", cfg.Redis.Enabled, cfg.Redis.Address)
	if cfg.EncryptionKey == "" {
		log.Println("WARNING: ENCRYPTION_KEY is not set, stored credentials will not be recoverable across restarts")
	}
}
