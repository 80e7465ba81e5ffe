package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Admin     AdminConfig
	Access    AccessConfig
	Scheduler SchedulerConfig
	Session   SessionConfig
	Geo       GeoConfig
	Storage   StorageConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// JWTConfig holds JWT token configuration
type JWTConfig struct {
	AccessSecret       string
	RefreshSecret      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
}

// AdminConfig holds the superuser short-circuit credentials.
// The password is stored as a bcrypt hash, never plaintext.
type AdminConfig struct {
	Email        string
	PasswordHash string
}

// AccessConfig holds the knobs for session-origin anomaly detection.
// SuspiciousIPThreshold is the login-time observational signal; it is
// a separate knob from the risk tiers in the security package.
type AccessConfig struct {
	SuspiciousIPThreshold int
}

// SchedulerConfig holds unlock scheduler cadences and notification caps
type SchedulerConfig struct {
	ScheduledUnlockInterval time.Duration
	StartupDelay            time.Duration
	ReconcileDebounce       time.Duration
	UnlockNotifyCap         int
	LockNotifyCap           int
}

// SessionConfig holds session tracking configuration.
// SessionTimeout is surfaced in session listings only; no automatic
// eviction is performed on inactivity.
type SessionConfig struct {
	HeartbeatInterval time.Duration
	SessionTimeout    time.Duration
}

// GeoConfig holds IP-geolocation lookup configuration
type GeoConfig struct {
	Endpoint       string
	Timeout        time.Duration
	RequestsPerMin int
}

// StorageConfig holds S3/MinIO configuration for lesson materials
type StorageConfig struct {
	Endpoint           string
	Region             string
	AccessKeyID        string
	SecretAccessKey    string
	Bucket             string
	UseSSL             bool
	PresignedURLExpiry time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "membergate"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			AccessSecret:       getEnv("JWT_ACCESS_SECRET", ""),
			RefreshSecret:      getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenExpiry:  getDurationEnv("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getDurationEnv("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
			Issuer:             getEnv("JWT_ISSUER", "membergate"),
		},
		Admin: AdminConfig{
			Email:        getEnv("ADMIN_EMAIL", ""),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Access: AccessConfig{
			SuspiciousIPThreshold: getIntEnv("ACCESS_SUSPICIOUS_IP_THRESHOLD", 2),
		},
		Scheduler: SchedulerConfig{
			ScheduledUnlockInterval: getDurationEnv("SCHEDULER_UNLOCK_INTERVAL", 5*time.Minute),
			StartupDelay:            getDurationEnv("SCHEDULER_STARTUP_DELAY", time.Second),
			ReconcileDebounce:       getDurationEnv("SCHEDULER_RECONCILE_DEBOUNCE", time.Second),
			UnlockNotifyCap:         getIntEnv("SCHEDULER_UNLOCK_NOTIFY_CAP", 3),
			LockNotifyCap:           getIntEnv("SCHEDULER_LOCK_NOTIFY_CAP", 2),
		},
		Session: SessionConfig{
			HeartbeatInterval: getDurationEnv("SESSION_HEARTBEAT_INTERVAL", 5*time.Minute),
			SessionTimeout:    getDurationEnv("SESSION_TIMEOUT", 30*time.Minute),
		},
		Geo: GeoConfig{
			Endpoint:       getEnv("GEO_LOOKUP_ENDPOINT", "https://ip-api.io/json"),
			Timeout:        getDurationEnv("GEO_LOOKUP_TIMEOUT", 3*time.Second),
			RequestsPerMin: getIntEnv("GEO_LOOKUP_RPM", 30),
		},
		Storage: StorageConfig{
			Endpoint:           getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			Region:             getEnv("STORAGE_REGION", "us-east-1"),
			AccessKeyID:        getEnv("STORAGE_ACCESS_KEY", ""),
			SecretAccessKey:    getEnv("STORAGE_SECRET_KEY", ""),
			Bucket:             getEnv("STORAGE_BUCKET", "membergate-materials"),
			UseSSL:             getBoolEnv("STORAGE_USE_SSL", false),
			PresignedURLExpiry: getDurationEnv("STORAGE_PRESIGN_EXPIRY", 15*time.Minute),
		},
	}
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv returns duration from environment variable or default
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getIntEnv returns an integer from environment variable or default
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getBoolEnv returns a boolean from environment variable or default
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
