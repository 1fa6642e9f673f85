// Package config loads chorekeeper settings from defaults, an optional YAML
// file, a .env file and CHOREKEEPER_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "CHOREKEEPER"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Backup   BackupConfig   `mapstructure:"backup"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// RateLimit is the number of write requests one actor may make per minute.
	RateLimit int `mapstructure:"rate_limit"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type ScanConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type BackupConfig struct {
	Dir        string   `mapstructure:"dir"`
	Passphrase string   `mapstructure:"passphrase"`
	S3         S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

var defaults = map[string]any{
	"server.addr":            ":8080",
	"server.allowed_origins": []string{},
	"server.rate_limit":      120,
	"database.path":          "chorekeeper.db",
	"log.level":              "info",
	"log.format":             "text",
	"auth.secret":            "",
	"auth.token_ttl":         30 * 24 * time.Hour,
	"scan.interval":          time.Minute,
	"backup.dir":             "backups",
	"backup.passphrase":      "",
	"backup.s3.endpoint":     "",
	"backup.s3.bucket":       "",
	"backup.s3.region":       "us-east-1",
	"backup.s3.prefix":       "chorekeeper",
	"backup.s3.access_key":   "",
	"backup.s3.secret_key":   "",
}

// Load builds the configuration. path names an optional YAML file; a
// missing .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings the HTTP server cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	} else if len(c.Auth.Secret) < 32 {
		errs = append(errs, errors.New("auth.secret must be at least 32 bytes"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Scan.Interval <= 0 {
		errs = append(errs, errors.New("scan.interval must be positive"))
	}
	s3 := c.Backup.S3
	if s3.Bucket != "" && (s3.AccessKey == "" || s3.SecretKey == "") {
		errs = append(errs, errors.New("backup.s3 needs access_key and secret_key"))
	}
	return errors.Join(errs...)
}
