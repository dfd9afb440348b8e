package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (visit ledger, rate limiting, refresh coalescing)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// SQS badge refresh queue
	SQSRegion   string
	SQSQueueURL string

	// Expo push API for badge updates
	ExpoPushURL string
	ExpoTimeout int // seconds

	// Resend transactional email
	ResendAPIKey string
	EmailFrom    string

	// Badge refresh coalescing window in seconds
	RefreshCoalesceWindow int
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "pulse",
		DBPassword: "",
		DBName:     "goodtimes",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		ExpoPushURL: "https://exp.host/--/api/v2/push/send",
		ExpoTimeout: 10,

		EmailFrom: "Good Times <hello@thegoodtimes.app>",

		RefreshCoalesceWindow: 15,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// SQS config
	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else {
		cfg.SQSRegion = "us-east-1"
	}

	if url := os.Getenv("SQS_QUEUE_URL"); url != "" {
		cfg.SQSQueueURL = url
	}

	// Expo push config
	if url := os.Getenv("EXPO_PUSH_URL"); url != "" {
		cfg.ExpoPushURL = url
	}

	if timeout := os.Getenv("EXPO_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid EXPO_TIMEOUT: %w", err)
		}
		cfg.ExpoTimeout = t
	}

	// Email config
	if key := os.Getenv("RESEND_API_KEY"); key != "" {
		cfg.ResendAPIKey = key
	}

	if from := os.Getenv("EMAIL_FROM"); from != "" {
		cfg.EmailFrom = from
	}

	if window := os.Getenv("REFRESH_COALESCE_WINDOW"); window != "" {
		w, err := strconv.Atoi(window)
		if err != nil {
			return nil, fmt.Errorf("invalid REFRESH_COALESCE_WINDOW: %w", err)
		}
		cfg.RefreshCoalesceWindow = w
	}

	return cfg, nil
}
