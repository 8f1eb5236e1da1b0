package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "wabridge"
	DefaultPGSSLMode    = "disable"
	DefaultGraphBaseURL = "https://graph.facebook.com"
	DefaultGraphVersion = "v23.0"
	DefaultHTTPTimeout  = 30
	DefaultMediaRoot    = "data"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	WhatsApp WhatsAppConfig `toml:"whatsapp"`
	Media    MediaConfig    `toml:"media"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr" validate:"required"`
	// PublicBaseURL is the externally reachable base URL used when
	// recording media storage URLs (no trailing slash).
	PublicBaseURL string `toml:"public_base_url" validate:"omitempty,url"`
}

type PostgresConfig struct {
	Host     string `toml:"host" validate:"required"`
	Port     int    `toml:"port" validate:"required,min=1,max=65535"`
	User     string `toml:"user" validate:"required"`
	Password string `toml:"password"`
	Database string `toml:"database" validate:"required"`
	SSLMode  string `toml:"sslmode"`
}

type WhatsAppConfig struct {
	// AppSecret signs webhook deliveries (X-Hub-Signature-256).
	AppSecret string `toml:"app_secret" validate:"required"`
	// VerifyToken answers the subscription handshake.
	VerifyToken string `toml:"verify_token" validate:"required"`
	// AccessToken authenticates Graph API media calls.
	AccessToken    string `toml:"access_token" validate:"required"`
	APIBaseURL     string `toml:"api_base_url" validate:"required,url"`
	APIVersion     string `toml:"api_version" validate:"required"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"min=1"`
}

type MediaConfig struct {
	// DataRoot is the local directory media files are relocated into.
	DataRoot string `toml:"data_root" validate:"required"`
}

func defaults() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:          DefaultHTTPAddr,
			PublicBaseURL: "http://127.0.0.1:8080",
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		WhatsApp: WhatsAppConfig{
			APIBaseURL:     DefaultGraphBaseURL,
			APIVersion:     DefaultGraphVersion,
			TimeoutSeconds: DefaultHTTPTimeout,
		},
		Media: MediaConfig{
			DataRoot: DefaultMediaRoot,
		},
	}
}

// Load reads the TOML config at path (DefaultConfigPath when empty),
// filling defaults first. A missing file yields the defaults; validation
// still applies so required secrets must come from somewhere.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DSN renders the Postgres connection string for pgxpool.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = DefaultPGSSLMode
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode,
	)
}
