package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeremyhahn/go-idverify/pkg/oauth"
	"github.com/jeremyhahn/go-idverify/pkg/store"
	"github.com/jeremyhahn/go-idverify/pkg/token"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

const envPrefix = "IDVERIFY"

// cliConfig is read from an optional config file, the environment
// (IDVERIFY_CLIENT_ID and so on) and an optional .env file.
type cliConfig struct {
	ClientID         string        `mapstructure:"client_id"`
	ClientSecret     string        `mapstructure:"client_secret"`
	RedirectURI      string        `mapstructure:"redirect_uri"`
	Scopes           []string      `mapstructure:"scopes"`
	Environment      string        `mapstructure:"environment"`
	Mode             string        `mapstructure:"mode"`
	VerificationType string        `mapstructure:"verification_type"`
	Timeout          time.Duration `mapstructure:"timeout"`
	LoginTimeout     time.Duration `mapstructure:"login_timeout"`

	// Issuer, when set, replaces the environment's endpoints with those
	// of the issuer's discovery document.
	Issuer      string `mapstructure:"issuer"`
	PoliciesURL string `mapstructure:"policies_url"`

	Store     string `mapstructure:"store"`
	StorePath string `mapstructure:"store_path"`
	StoreKey  string `mapstructure:"store_key"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisKey  string `mapstructure:"redis_key"`

	LogEnv   string `mapstructure:"log_env"`
	LogLevel string `mapstructure:"log_level"`
}

var defaults = map[string]any{
	"client_id":         "",
	"client_secret":     "",
	"redirect_uri":      "http://127.0.0.1:8976/callback",
	"scopes":            []string{},
	"environment":       string(oauth.EnvironmentSandbox),
	"mode":              string(oauth.ModeOAuthPKCE),
	"verification_type": string(oauth.VerificationSingle),
	"timeout":           "30s",
	"login_timeout":     "5m",
	"issuer":            "",
	"policies_url":      "",
	"store":             "file",
	"store_path":        "",
	"store_key":         "",
	"redis_addr":        "127.0.0.1:6379",
	"redis_key":         store.DefaultRedisKey,
	"log_env":           "prod",
	"log_level":         "warn",
}

// loadConfig resolves the configuration. envFile is loaded when given;
// otherwise a .env in the working directory is loaded if present.
func loadConfig(configFile, envFile string) (*cliConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg cliConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// oauthConfig converts to the SDK configuration.
func (c *cliConfig) oauthConfig() oauth.Config {
	var scopes []string
	for _, s := range c.Scopes {
		for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
			scopes = append(scopes, part)
		}
	}
	return oauth.Config{
		ClientID:         c.ClientID,
		ClientSecret:     c.ClientSecret,
		RedirectURI:      c.RedirectURI,
		Scopes:           scopes,
		Environment:      oauth.Environment(c.Environment),
		Mode:             oauth.AuthMode(c.Mode),
		VerificationType: oauth.VerificationType(c.VerificationType),
		Timeout:          c.Timeout,
	}
}

// openStore builds the configured credential store. The returned func
// releases its resources.
func (c *cliConfig) openStore() (token.Store, func() error, error) {
	noop := func() error { return nil }
	switch c.Store {
	case "memory":
		return store.NewMemory(), noop, nil
	case "file":
		if c.StoreKey == "" {
			return nil, nil, errors.New("file store needs an encryption key: set IDVERIFY_STORE_KEY")
		}
		path := c.StorePath
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, nil, fmt.Errorf("locate config dir: %w", err)
			}
			path = filepath.Join(dir, "idverify", "credentials")
		}
		s, err := store.NewFile(path, c.StoreKey)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		return store.NewRedis(client, store.WithKey(c.RedisKey), store.WithExpiryGrace(30*24*time.Hour)), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q (want memory, file or redis)", c.Store)
}
