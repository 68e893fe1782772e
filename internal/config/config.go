// Package config provides runtime configuration values for the service.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds configuration knobs for the HTTP server, the store and the
// token provider.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string

	DBDialect      string
	DBDSN          string
	DBMaxOpenConns int
	DBAutoMigrate  bool

	PageSizeDefault int
	PageSizeMax     int

	OAuthClientID      string
	OAuthClientSecret  string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	TokenSweepInterval time.Duration
	BcryptCost         int

	Users []User
}

// User is a resource owner allowed to obtain tokens with the password grant.
type User struct {
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	Capabilities []string `mapstructure:"capabilities"`
}

const (
	creators = "ROLE_PRODUCT_CREATORS"
	managers = "ROLE_PRODUCT_MANAGERS"
	pricing  = "ROLE_PRODUCT_PRICING"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("shutdown_timeout", 15)
	v.SetDefault("log_level", "info")
	v.SetDefault("db_dialect", "sqlite")
	v.SetDefault("db_dsn", "file:catalog.db?_pragma=foreign_keys(1)")
	v.SetDefault("db_max_open_conns", 10)
	v.SetDefault("db_auto_migrate", true)
	v.SetDefault("page_size_default", 15)
	v.SetDefault("page_size_max", 2000)
	v.SetDefault("oauth_client_id", "bravo_client")
	v.SetDefault("oauth_client_secret", "bravo_secret")
	v.SetDefault("access_token_ttl", 120)
	v.SetDefault("refresh_token_ttl", 600)
	v.SetDefault("token_sweep_interval_ms", 30000)
	v.SetDefault("bcrypt_cost", 10)
	v.SetDefault("users", []map[string]any{
		{"username": "creator", "password": "creator", "capabilities": []string{creators}},
		{"username": "manager", "password": "manager", "capabilities": []string{managers}},
		{"username": "pricing", "password": "pricing", "capabilities": []string{pricing}},
		{"username": "admin", "password": "admin", "capabilities": []string{creators, managers, pricing}},
	})
}

// Load collects configuration from defaults, the environment and, when file
// is not empty, a YAML/JSON/TOML config file. Environment variables win over
// the file.
func Load(file string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var users []User
	if err := v.UnmarshalKey("users", &users); err != nil {
		return Config{}, fmt.Errorf("decode users: %w", err)
	}

	c := Config{
		HTTPAddr:           v.GetString("http_addr"),
		ShutdownTimeout:    time.Duration(v.GetInt("shutdown_timeout")) * time.Second,
		LogLevel:           v.GetString("log_level"),
		DBDialect:          v.GetString("db_dialect"),
		DBDSN:              v.GetString("db_dsn"),
		DBMaxOpenConns:     v.GetInt("db_max_open_conns"),
		DBAutoMigrate:      v.GetBool("db_auto_migrate"),
		PageSizeDefault:    v.GetInt("page_size_default"),
		PageSizeMax:        v.GetInt("page_size_max"),
		OAuthClientID:      v.GetString("oauth_client_id"),
		OAuthClientSecret:  v.GetString("oauth_client_secret"),
		AccessTokenTTL:     time.Duration(v.GetInt("access_token_ttl")) * time.Second,
		RefreshTokenTTL:    time.Duration(v.GetInt("refresh_token_ttl")) * time.Second,
		TokenSweepInterval: time.Duration(v.GetInt("token_sweep_interval_ms")) * time.Millisecond,
		BcryptCost:         v.GetInt("bcrypt_cost"),
		Users:              users,
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	switch c.DBDialect {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported db dialect %q", c.DBDialect)
	}
	if c.PageSizeDefault < 1 || c.PageSizeMax < c.PageSizeDefault {
		return fmt.Errorf("invalid page sizes: default %d, max %d", c.PageSizeDefault, c.PageSizeMax)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	return nil
}
