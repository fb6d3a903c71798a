package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        int      `yaml:"port" validate:"min=1,max=65535"`
		CORSOrigins []string `yaml:"corsOrigins"`
		// RateLimit is requests per second per user; zero disables limiting.
		RateLimit float64 `yaml:"rateLimit" validate:"min=0"`
		RateBurst int     `yaml:"rateBurst" validate:"min=0"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver" validate:"oneof=sqlite mysql postgres"`
		Path     string `yaml:"path"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Storage struct {
		Backend string `yaml:"backend" validate:"oneof=filesystem minio"`
		Root    string `yaml:"root"`
	} `yaml:"storage"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Prefix     string `yaml:"prefix"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Evidence struct {
		BootstrapAdminUsername string `yaml:"bootstrapAdminUsername"`
		BootstrapAdminPassword string `yaml:"bootstrapAdminPassword"`
		DefaultTenant          string `yaml:"defaultTenant"`
		StoreExcerpt           bool   `yaml:"storeExcerpt"`
		AutoSaveEvidence       bool   `yaml:"autoSaveEvidence"`
		IndexEnabled           bool   `yaml:"indexEnabled"`
		IncludeObjectsInExport bool   `yaml:"includeObjectsInExport"`
		ExcerptChars           int    `yaml:"excerptChars" validate:"min=0"`
		SearchLimit            int    `yaml:"searchLimit" validate:"min=0"`
	} `yaml:"evidence"`

	Analyzer struct {
		Provider string `yaml:"provider" validate:"oneof=patterns openai"`
		APIKey   string `yaml:"apiKey"`
		Model    string `yaml:"model"`
	} `yaml:"analyzer"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format" validate:"omitempty,oneof=text json"`
	} `yaml:"logging"`
}

var v = validator.New()

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	var cfg Config
	cfg.Server.Port = 8080
	cfg.Server.RateLimit = 20
	cfg.Server.RateBurst = 40
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = "data/evidence.db"
	cfg.Database.SSLMode = "disable"
	cfg.Storage.Backend = "filesystem"
	cfg.Storage.Root = "data/repo"
	cfg.Evidence.BootstrapAdminUsername = "superadmin"
	cfg.Evidence.DefaultTenant = "default"
	cfg.Evidence.StoreExcerpt = true
	cfg.Evidence.AutoSaveEvidence = true
	cfg.Evidence.IndexEnabled = true
	cfg.Evidence.IncludeObjectsInExport = true
	cfg.Evidence.ExcerptChars = 1200
	cfg.Evidence.SearchLimit = 400
	cfg.Analyzer.Provider = "patterns"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return &cfg
}

// Load reads an optional .env, the YAML file at path and the environment
// overrides, then validates the result. A missing file leaves the defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns CONFIG_PATH or config.yaml.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if val, ok := os.LookupEnv(key); ok {
			*dst = val
		}
	}
	setString(&c.Evidence.BootstrapAdminPassword, "EVIDENCE_BOOTSTRAP_PASSWORD")
	setString(&c.Evidence.BootstrapAdminUsername, "EVIDENCE_BOOTSTRAP_USERNAME")
	setString(&c.Database.Password, "DATABASE_PASSWORD")
	setString(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Analyzer.APIKey, "OPENAI_API_KEY")
	if val, ok := os.LookupEnv("PORT"); ok {
		if port, err := strconv.Atoi(val); err == nil {
			c.Server.Port = port
		}
	}
}

// Validate checks field rules and the cross-field requirements of the
// chosen backends.
func (c *Config) Validate() error {
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("config: database.path required for sqlite")
		}
	default:
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("config: database.host and database.name required for %s", c.Database.Driver)
		}
	}
	if c.Storage.Backend == "minio" && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		return errors.New("config: minio.endpoint and minio.bucketName required")
	}
	if c.Storage.Backend == "filesystem" && c.Storage.Root == "" {
		return errors.New("config: storage.root required")
	}
	if c.Analyzer.Provider == "openai" && c.Analyzer.APIKey == "" {
		return errors.New("config: analyzer.apiKey (or OPENAI_API_KEY) required for openai")
	}
	return nil
}

// MySQLDSN builds the go-sql-driver DSN.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
