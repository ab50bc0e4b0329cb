package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
)

type Config struct {
	ServerURL              string        `mapstructure:"SERVER_URL"`
	StoreBackend           string        `mapstructure:"STORE_BACKEND"`
	DirectoryBackend       string        `mapstructure:"DIRECTORY_BACKEND"`
	DatabaseURL            string        `mapstructure:"DATABASE_URL"`
	CloudinaryCloudName    string        `mapstructure:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryUploadPreset string        `mapstructure:"CLOUDINARY_UPLOAD_PRESET"`
	LogDevelopment         bool          `mapstructure:"LOG_DEVELOPMENT"`
	WSAuthTimeout          time.Duration `mapstructure:"WS_AUTH_TIMEOUT"`
}

var keys = []string{
	"SERVER_URL", "STORE_BACKEND", "DIRECTORY_BACKEND", "DATABASE_URL",
	"CLOUDINARY_CLOUD_NAME", "CLOUDINARY_UPLOAD_PRESET", "LOG_DEVELOPMENT", "WS_AUTH_TIMEOUT",
}

// Load reads envFile into the process environment when it exists and then
// resolves every key from the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// A missing file is fine; the environment may already be complete.
		_ = godotenv.Load(envFile)
	}

	v := viper.New()
	v.SetDefault("SERVER_URL", ":8080")
	v.SetDefault("STORE_BACKEND", BackendFirestore)
	v.SetDefault("DIRECTORY_BACKEND", BackendFirestore)
	v.SetDefault("LOG_DEVELOPMENT", false)
	v.SetDefault("WS_AUTH_TIMEOUT", 30*time.Second)
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Wrapf(err, "binding %s", key)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendFirestore, BackendMemory:
	default:
		return errors.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendFirestore, BackendMemory, c.StoreBackend)
	}
	switch c.DirectoryBackend {
	case BackendFirestore, BackendPostgres:
	default:
		return errors.Errorf("DIRECTORY_BACKEND must be %q or %q, got %q", BackendFirestore, BackendPostgres, c.DirectoryBackend)
	}
	if c.DirectoryBackend == BackendPostgres && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required when DIRECTORY_BACKEND is postgres")
	}
	if c.WSAuthTimeout <= 0 {
		return errors.Errorf("WS_AUTH_TIMEOUT must be positive, got %s", c.WSAuthTimeout)
	}
	return nil
}

// MediaEnabled reports whether image uploads are configured.
func (c *Config) MediaEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryUploadPreset != ""
}
