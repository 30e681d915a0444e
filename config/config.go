package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Backends accepted in DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverTables   = "aztables"
)

// Config holds the server configuration.
type Config struct {
	// Application
	ListenAddr string
	AppEnv     string
	Debug      bool

	// Storage
	DBDriver          string
	DBDSN             string
	StorageConnString string
	TasksTable        string

	// Redis
	RedisURL   string
	CacheTTL   time.Duration
	DeduperTTL time.Duration

	// Sessions
	SessionSecret string
	SessionTTL    time.Duration
	JWKSURL       string

	// Events
	EventsChannel       string
	EventsQueue         string
	EventWorkers        int
	EventBuffer         int
	EventHandoffTimeout time.Duration
}

// Client holds the settings used by the board commands.
type Client struct {
	BaseURL string
	Session string
	Layout  string
}

// Load reads the environment after loading an optional .env file.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		AppEnv:     getEnv("APP_ENV", "development"),
		Debug:      getBoolEnv("DEBUG", false, &errs),

		DBDriver:          getEnv("DB_DRIVER", DriverSQLite),
		DBDSN:             getEnv("DB_DSN", "taskboard.db"),
		StorageConnString: os.Getenv("STORAGE_CONNECTION_STRING"),
		TasksTable:        getEnv("TASKS_TABLE", "Tasks"),

		RedisURL:   os.Getenv("REDIS_URL"),
		CacheTTL:   getDurationEnv("CACHE_TTL", time.Minute, &errs),
		DeduperTTL: getDurationEnv("DEDUPER_TTL", 24*time.Hour, &errs),

		SessionSecret: os.Getenv("SESSION_SECRET"),
		SessionTTL:    getDurationEnv("SESSION_TTL", 7*24*time.Hour, &errs),
		JWKSURL:       os.Getenv("AUTH_JWKS_URL"),

		EventsChannel:       getEnv("EVENTS_CHANNEL", "task-events"),
		EventsQueue:         os.Getenv("EVENTS_QUEUE"),
		EventWorkers:        getIntEnv("EVENT_WORKERS", 4, &errs),
		EventBuffer:         getIntEnv("EVENT_BUFFER", 256, &errs),
		EventHandoffTimeout: getDurationEnv("EVENT_HANDOFF_TIMEOUT", 15*time.Millisecond, &errs),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required")
	}
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
		if c.DBDSN == "" {
			return errors.New("DB_DSN is required")
		}
	case DriverTables:
		if c.StorageConnString == "" || c.TasksTable == "" {
			return errors.New("missing storage config")
		}
	default:
		return fmt.Errorf("invalid DB_DRIVER %q", c.DBDriver)
	}
	if c.EventsQueue != "" && c.StorageConnString == "" {
		return errors.New("EVENTS_QUEUE requires STORAGE_CONNECTION_STRING")
	}
	if c.EventWorkers <= 0 {
		return errors.New("invalid EVENT_WORKERS: must be greater than zero")
	}
	return nil
}

// IsProduction reports whether cookies must be marked Secure.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// LoadClient reads the board command settings.
func LoadClient() Client {
	_ = godotenv.Load()
	return Client{
		BaseURL: getEnv("TASKBOARD_URL", "http://localhost:8080"),
		Session: os.Getenv("TASKBOARD_SESSION"),
		Layout:  os.Getenv("TASKBOARD_LAYOUT"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return i
}

func getDurationEnv(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	if d <= 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s: must be greater than zero", key))
		return defaultValue
	}
	return d
}

func getBoolEnv(key string, defaultValue bool, errs *[]error) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return b
}
