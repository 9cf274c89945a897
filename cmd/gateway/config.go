package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"exchange-gateway/middleware/ratelimit/domain"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type config struct {
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	UpstreamURL string `env:"UPSTREAM_URL,required"`
	// ExchangeURL recebe /api/v3/*. Vazio desliga a rota da exchange.
	ExchangeURL string `env:"EXCHANGE_URL"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	APIKeyHeader string `env:"API_KEY_HEADER" envDefault:"X-Api-Key"`
	TrustXFF     bool   `env:"TRUST_XFF" envDefault:"false"`

	Rate     rateConfig     `envPrefix:"RATE_"`
	Tier     tierConfig     `envPrefix:"TIER_"`
	Exchange exchangeConfig `envPrefix:"MEXC_"`
	Stats    statsConfig    `envPrefix:"RATE_STATS_"`

	CleanupEvery time.Duration `env:"RATE_CLEANUP_EVERY" envDefault:"5m"`
}

// rateConfig é o limite geral por cliente, que encolhe com a carga.
type rateConfig struct {
	Enabled      bool          `env:"ENABLED" envDefault:"true"`
	MaxRequests  int           `env:"MAX_REQUESTS" envDefault:"100"`
	Window       time.Duration `env:"WINDOW" envDefault:"1m"`
	BurstLimit   int           `env:"BURST" envDefault:"0"`
	LoadCapacity int           `env:"LOAD_CAPACITY" envDefault:"0"`
	LoadEvery    time.Duration `env:"LOAD_EVERY" envDefault:"1s"`
}

type tierConfig struct {
	AuthRequests int           `env:"AUTH_MAX_REQUESTS" envDefault:"1000"`
	AuthWindow   time.Duration `env:"AUTH_WINDOW" envDefault:"1m"`
	AuthBurst    int           `env:"AUTH_BURST" envDefault:"0"`
	AnonRequests int           `env:"ANON_MAX_REQUESTS" envDefault:"60"`
	AnonWindow   time.Duration `env:"ANON_WINDOW" envDefault:"1m"`
	AnonBurst    int           `env:"ANON_BURST" envDefault:"10"`
}

type exchangeConfig struct {
	OrderLimit          int `env:"ORDER_LIMIT" envDefault:"5"`
	BatchOrderLimit     int `env:"BATCH_ORDER_LIMIT" envDefault:"2"`
	DefaultWeight       int `env:"DEFAULT_WEIGHT" envDefault:"1"`
	MaxWeight           int `env:"MAX_WEIGHT" envDefault:"500"`
	WebsocketLimit      int `env:"WEBSOCKET_LIMIT" envDefault:"100"`
	MaxWebsocketStreams int `env:"MAX_WEBSOCKET_STREAMS" envDefault:"30"`
}

type statsConfig struct {
	Enabled         bool          `env:"ENABLED" envDefault:"false"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	Prefix          string        `env:"PREFIX" envDefault:"ratelimit:stats"`
	TTL             time.Duration `env:"TTL" envDefault:"24h"`
	Bucket          string        `env:"BUCKET" envDefault:"minute"`
	TrackIdentities bool          `env:"TRACK_IDENTITIES" envDefault:"false"`
}

func (c rateConfig) limit() domain.LimitConfig {
	return domain.LimitConfig{MaxRequests: c.MaxRequests, Window: c.Window, BurstLimit: c.BurstLimit}
}

func (c tierConfig) tiers() domain.TierConfig {
	return domain.TierConfig{
		Authenticated:   domain.LimitConfig{MaxRequests: c.AuthRequests, Window: c.AuthWindow, BurstLimit: c.AuthBurst},
		Unauthenticated: domain.LimitConfig{MaxRequests: c.AnonRequests, Window: c.AnonWindow, BurstLimit: c.AnonBurst},
	}
}

func (c exchangeConfig) quota() domain.ExchangeQuotaConfig {
	return domain.ExchangeQuotaConfig(c)
}

// readConfig carrega .env (se existir) e depois o ambiente.
func readConfig() (config, error) {
	_ = godotenv.Load()
	return parseConfig(env.Options{})
}

func parseConfig(opts env.Options) (config, error) {
	var cfg config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	var errs []error
	if _, err := parseUpstream(c.UpstreamURL); err != nil {
		errs = append(errs, fmt.Errorf("UPSTREAM_URL: %w", err))
	}
	if c.ExchangeURL != "" {
		if _, err := parseUpstream(c.ExchangeURL); err != nil {
			errs = append(errs, fmt.Errorf("EXCHANGE_URL: %w", err))
		}
	}
	if c.Rate.Enabled {
		if err := c.Rate.limit().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("RATE_*: %w", err))
		}
	}
	if err := c.Tier.tiers().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("TIER_*: %w", err))
	}
	if err := c.Exchange.quota().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("MEXC_*: %w", err))
	}
	if c.Stats.Enabled && strings.TrimSpace(c.Stats.RedisAddr) == "" {
		errs = append(errs, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true"))
	}
	return errors.Join(errs...)
}

func parseUpstream(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute URL", raw)
	}
	return u, nil
}
