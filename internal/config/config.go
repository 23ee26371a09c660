package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Auth       AuthConfig
	Scan       ScanConfig
	Migrations MigrationsConfig
	QRSecret   string
	LogDir     string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CookieSecure    bool
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	Driver         string // postgres or sqlite
	DSN            string
	MaxOpenConns   int
	MaxIdleConns   int
	MaxLifetime    time.Duration
	ConnectRetries int
	RetryDelay     time.Duration
}

type RedisConfig struct {
	Addr     string
	Enabled  bool
	StatsTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	TicketScanned string
	EventReset    string
}

type AuthConfig struct {
	OIDCIssuer string
	JWTSecret  string
}

type ScanConfig struct {
	// CountRepeatScans bumps scan_count on already-redeemed scans as well as
	// on the admitting one.
	CountRepeatScans bool
	Timeout          time.Duration
}

type MigrationsConfig struct {
	AutoMigrate bool
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8085"),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 5*time.Second),
			CookieSecure:    getEnvBool("COOKIE_SECURE", false),
			AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", nil),
		},
		Database: DatabaseConfig{
			Driver:         getEnv("DB_DRIVER", "postgres"),
			DSN:            getEnv("DATABASE_DSN", getEnv("POSTGRES_DSN", "")),
			MaxOpenConns:   getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:    time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			ConnectRetries: getEnvInt("DB_CONNECT_RETRIES", 5),
			RetryDelay:     getEnvDuration("DB_RETRY_DELAY", 2*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			StatsTTL: getEnvDuration("REDIS_STATS_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", defaultGroupID()),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Topics: TopicConfig{
				TicketScanned: getEnv("KAFKA_TOPIC_TICKET_SCANNED", "checkin.ticket.scanned"),
				EventReset:    getEnv("KAFKA_TOPIC_EVENT_RESET", "checkin.event.reset"),
			},
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
			JWTSecret:  getEnv("JWT_SECRET", ""),
		},
		Scan: ScanConfig{
			CountRepeatScans: getEnvBool("SCAN_COUNT_REPEATS", true),
			Timeout:          getEnvDuration("SCAN_TIMEOUT", 5*time.Second),
		},
		Migrations: MigrationsConfig{
			AutoMigrate: getEnvBool("AUTO_MIGRATE", true),
		},
		QRSecret: getEnv("QR_SECRET_KEY", ""),
		LogDir:   getEnv("LOG_DIR", "logs"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty entries.
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
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Every instance needs its own consumer group so each one sees every
// attendance event for its local SSE clients.
func defaultGroupID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return "checkin-live-" + host
}
