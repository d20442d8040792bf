package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is for the whole process, loaded and validated once at start.
// The identity core only reads already-validated values from here.
type Config struct {
	HTTPAddr    string
	DatabaseDSN string

	// Identity provider. Either the OIDC pair (IssuerURL + ClientID) or
	// StaticSecret must be set; the static secret is the development and
	// test fallback.
	IssuerURL    string
	ClientID     string
	StaticSecret string

	VerifyTimeout time.Duration
	QueryTimeout  time.Duration

	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// Load reads TESSERA_* environment variables, applies defaults, and
// validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TESSERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("verify_timeout", "5s")
	v.SetDefault("query_timeout", "3s")
	v.SetDefault("rate_limit_per_second", 50)
	v.SetDefault("rate_limit_burst", 100)
	v.SetDefault("max_body_bytes", 1<<20)

	cfg := &Config{
		HTTPAddr:           v.GetString("http_addr"),
		DatabaseDSN:        v.GetString("pg_dsn"),
		IssuerURL:          v.GetString("idp_issuer_url"),
		ClientID:           v.GetString("idp_client_id"),
		StaticSecret:       v.GetString("auth_secret"),
		VerifyTimeout:      v.GetDuration("verify_timeout"),
		QueryTimeout:       v.GetDuration("query_timeout"),
		RateLimitPerSecond: v.GetInt("rate_limit_per_second"),
		RateLimitBurst:     v.GetInt("rate_limit_burst"),
		MaxBodyBytes:       v.GetInt64("max_body_bytes"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		errs = append(errs, errors.New("TESSERA_PG_DSN is required"))
	}
	oidcConfigured := strings.TrimSpace(c.IssuerURL) != "" && strings.TrimSpace(c.ClientID) != ""
	staticConfigured := strings.TrimSpace(c.StaticSecret) != ""
	if !oidcConfigured && !staticConfigured {
		errs = append(errs, errors.New("either TESSERA_IDP_ISSUER_URL + TESSERA_IDP_CLIENT_ID or TESSERA_AUTH_SECRET is required"))
	}
	if strings.TrimSpace(c.IssuerURL) != "" && strings.TrimSpace(c.ClientID) == "" {
		errs = append(errs, errors.New("TESSERA_IDP_CLIENT_ID is required when an issuer URL is set"))
	}
	if c.VerifyTimeout <= 0 {
		errs = append(errs, errors.New("verify timeout must be positive"))
	}
	if c.QueryTimeout <= 0 {
		errs = append(errs, errors.New("query timeout must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// UsesOIDC reports whether the production verifier should be constructed.
func (c *Config) UsesOIDC() bool {
	return strings.TrimSpace(c.IssuerURL) != "" && strings.TrimSpace(c.ClientID) != ""
}
