package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted by BACKEND.
const (
	BackendSQLite   = "sqlite"
	BackendFirebase = "firebase"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Backend  string
	DB       DBConfig
	Firebase FirebaseConfig
	Auth     AuthConfig
	Demo     DemoConfig
	JWT      JWTConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Upload   UploadConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
	// PublicURL prefixes the links in verification and reset emails.
	PublicURL string
}

type DBConfig struct {
	Path string
}

type FirebaseConfig struct {
	ProjectID         string
	CredentialsPath   string
	FirestoreDatabase string
	StorageBucket     string
	// Web API key for the Identity Toolkit password endpoints
	APIKey string
	// Emulator support for integration testing
	UseEmulator           bool
	EmulatorAuthHost      string
	EmulatorFirestoreHost string
}

type AuthConfig struct {
	RequireEmailVerification    bool     // refuse unverified principals (default: true)
	MockVerificationMode        bool     // log verification links instead of mailing them (dev only)
	VerificationExpirationHours int      // email verification expiration (default: 24 hours)
	AdminEmails                 []string // allow-list granting admin privilege
}

// DemoConfig describes the shared demo account visitors can sign in with.
type DemoConfig struct {
	Enabled   bool
	StudentID string
	Password  string
}

type JWTConfig struct {
	SigningKey string        // Secret key for JWT signing
	Issuer     string        // JWT issuer claim
	TTL        time.Duration // lifetime of issued API tokens
}

type RedisConfig struct {
	URL        string // empty disables the cache
	ProfileTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string // empty publishes claim events to the log only
	Topic   string
}

type UploadConfig struct {
	PlaceholderImageURL string
	MaxBytes            int
}

// Load returns application configuration from environment variables.
// A .env file in the working directory is read first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:      getEnv("PORT", "8080"),
			Env:       getEnv("ENV", "development"),
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			PublicURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		},
		Backend: getEnv("BACKEND", BackendSQLite),
		DB: DBConfig{
			Path: getEnv("DB_PATH", "connect.db"),
		},
		Firebase: FirebaseConfig{
			ProjectID:             getEnv("FIREBASE_PROJECT_ID", "ruet-connect"),
			CredentialsPath:       getEnv("FIREBASE_CREDENTIALS_PATH", ""),
			FirestoreDatabase:     getEnv("FIRESTORE_DATABASE", "(default)"),
			StorageBucket:         getEnv("FIREBASE_STORAGE_BUCKET", "ruet-connect.firebasestorage.app"),
			APIKey:                getEnv("FIREBASE_API_KEY", ""),
			UseEmulator:           getEnvBool("USE_FIREBASE_EMULATOR", false),
			EmulatorAuthHost:      getEnv("FIREBASE_AUTH_EMULATOR_HOST", "localhost:9099"),
			EmulatorFirestoreHost: getEnv("FIRESTORE_EMULATOR_HOST", "localhost:8080"),
		},
		Auth: AuthConfig{
			RequireEmailVerification:    getEnvBool("REQUIRE_EMAIL_VERIFICATION", true),
			MockVerificationMode:        getEnvBool("MOCK_VERIFICATION_MODE", true),
			VerificationExpirationHours: getEnvInt("VERIFICATION_EXPIRATION_HOURS", 24),
			AdminEmails:                 getEnvList("ADMIN_EMAILS", nil),
		},
		Demo: DemoConfig{
			Enabled:   getEnvBool("DEMO_ENABLED", true),
			StudentID: getEnv("DEMO_STUDENT_ID", "2103141"),
			Password:  getEnv("DEMO_PASSWORD", "12345678"),
		},
		JWT: JWTConfig{
			SigningKey: getEnv("JWT_SIGNING_KEY", ""),
			Issuer:     getEnv("JWT_ISSUER", "connect.ruet.ac.bd"),
			TTL:        getEnvDuration("JWT_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			URL:        getEnv("REDIS_URL", ""),
			ProfileTTL: getEnvDuration("REDIS_PROFILE_TTL", 15*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_CLAIMS_TOPIC", "connect-claims"),
		},
		Upload: UploadConfig{
			PlaceholderImageURL: getEnv("PLACEHOLDER_IMAGE_URL", "https://placehold.co/600x400.png"),
			MaxBytes:            getEnvInt("UPLOAD_MAX_BYTES", 5<<20),
		},
	}
}

// IsProduction reports whether the server runs with ENV=production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// SlogLevel maps LOG_LEVEL to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolVal, err := strconv.ParseBool(value)
		if err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
