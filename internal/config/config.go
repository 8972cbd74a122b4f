package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config structure represents the application configuration
type Config struct {
	Server struct {
		Port            string        `yaml:"port" env:"SERVER_PORT" validate:"required"`
		Mode            string        `yaml:"mode" env:"SERVER_MODE" validate:"oneof=development production test"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" validate:"gt=0"`
		MaxUploadSize   int64         `yaml:"max_upload_size" env:"SERVER_MAX_UPLOAD_SIZE" validate:"gt=0"`
	} `yaml:"server"`

	Database struct {
		Driver          string `yaml:"driver" env:"DB_DRIVER" validate:"oneof=postgres memory"`
		Host            string `yaml:"host" env:"DB_HOST" validate:"required_if=Driver postgres"`
		Port            string `yaml:"port" env:"DB_PORT"`
		User            string `yaml:"user" env:"DB_USER"`
		Password        string `yaml:"password" env:"DB_PASSWORD"`
		DBName          string `yaml:"dbname" env:"DB_NAME"`
		SSLMode         string `yaml:"sslmode" env:"DB_SSLMODE"`
		MaxIdleConns    int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" validate:"min=0"`
		MaxOpenConns    int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" validate:"min=1"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
		AutoMigrate     bool   `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE"`
	} `yaml:"database"`

	Storage struct {
		BasePath  string `yaml:"base_path" env:"STORAGE_BASE_PATH" validate:"required"`
		UploadDir string `yaml:"upload_dir" env:"STORAGE_UPLOAD_DIR" validate:"required"`
	} `yaml:"storage"`

	Queue struct {
		Driver      string        `yaml:"driver" env:"QUEUE_DRIVER" validate:"oneof=memory redis"`
		Workers     int           `yaml:"workers" env:"QUEUE_WORKERS" validate:"min=1"`
		MaxAttempts int           `yaml:"max_attempts" env:"QUEUE_MAX_ATTEMPTS" validate:"min=1"`
		BackoffBase time.Duration `yaml:"backoff_base" env:"QUEUE_BACKOFF_BASE" validate:"min=0"`
		BackoffMax  time.Duration `yaml:"backoff_max" env:"QUEUE_BACKOFF_MAX" validate:"gtefield=BackoffBase"`
		JobTimeout  time.Duration `yaml:"job_timeout" env:"QUEUE_JOB_TIMEOUT" validate:"min=0"`
		Buffer      int           `yaml:"buffer" env:"QUEUE_BUFFER" validate:"min=0"`
	} `yaml:"queue"`

	Redis struct {
		Addr      string `yaml:"addr" env:"REDIS_ADDR"`
		Password  string `yaml:"password" env:"REDIS_PASSWORD"`
		DB        int    `yaml:"db" env:"REDIS_DB" validate:"min=0"`
		KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX"`

		// Consumer names the processing list of this instance; empty means the hostname
		Consumer string `yaml:"consumer" env:"REDIS_CONSUMER"`
	} `yaml:"redis"`

	Mail struct {
		Host            string `yaml:"host" env:"SMTP_HOST"`
		Port            int    `yaml:"port" env:"SMTP_PORT"`
		Username        string `yaml:"username" env:"SMTP_USERNAME"`
		Password        string `yaml:"password" env:"SMTP_PASSWORD"`
		FromName        string `yaml:"from_name" env:"SMTP_FROM_NAME"`
		FromEmail       string `yaml:"from_email" env:"SMTP_FROM_EMAIL"`
		UseTLS          bool   `yaml:"use_tls" env:"SMTP_USE_TLS"`
		RecipientFormat string `yaml:"recipient_format" env:"MAIL_RECIPIENT_FORMAT" validate:"required"`
	} `yaml:"mail"`

	Logging struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT" validate:"oneof=json text"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}
	setDefaults(config)

	// the file is optional; defaults and env vars are enough to run
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(file, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := processStructFields(config); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default values for the configuration
func setDefaults(config *Config) {
	config.Server.Port = "8080"
	config.Server.Mode = "development"
	config.Server.ShutdownTimeout = 30 * time.Second
	config.Server.MaxUploadSize = 10 << 20

	config.Database.Driver = "postgres"
	config.Database.Host = "localhost"
	config.Database.Port = "5432"
	config.Database.User = "postgres"
	config.Database.Password = "postgres"
	config.Database.DBName = "registrar"
	config.Database.SSLMode = "disable"
	config.Database.MaxIdleConns = 5
	config.Database.MaxOpenConns = 20
	config.Database.ConnMaxLifetime = "1h"
	config.Database.AutoMigrate = true

	config.Storage.BasePath = "./storage"
	config.Storage.UploadDir = "imports/uploads"

	config.Queue.Driver = "memory"
	config.Queue.Workers = 4
	config.Queue.MaxAttempts = 3
	config.Queue.BackoffBase = time.Second
	config.Queue.BackoffMax = 30 * time.Second
	config.Queue.JobTimeout = 10 * time.Minute
	config.Queue.Buffer = 256

	config.Redis.Addr = "localhost:6379"
	config.Redis.KeyPrefix = "registrar"

	config.Mail.Port = 587
	config.Mail.FromName = "Registrar"
	config.Mail.FromEmail = "registrar@example.edu"
	config.Mail.UseTLS = false
	config.Mail.RecipientFormat = "%d@students.example.edu"

	config.Logging.Level = "info"
	config.Logging.Format = "json"
}

// validateConfig ensures that the configuration is valid
func validateConfig(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return err
	}

	if config.Database.Driver == "postgres" {
		if _, err := time.ParseDuration(config.Database.ConnMaxLifetime); err != nil {
			return fmt.Errorf("invalid database connection max lifetime: %w", err)
		}
	}

	if config.Queue.Driver == "redis" && config.Redis.Addr == "" {
		return fmt.Errorf("redis address is required when queue driver is redis")
	}

	return nil
}

// GetPostgresConnectionString returns postgres connection string
func (c *Config) GetPostgresConnectionString() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
		sslMode,
	)
}
