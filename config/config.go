package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Env            string `env:"ENVIRONMENT" envDefault:"development"`
	ServerPort     int    `env:"SERVER_PORT" envDefault:"8080"`
	ServerDNS      string `env:"SERVER_DNS" envDefault:"http://localhost:8080"`
	BasicAuthCreds string `env:"BASIC_AUTH_CREDS"`
	DatabasePath   string `env:"DATABASE_PATH" envDefault:"repowatch.sqlite"`

	GitHub struct {
		APIURL string `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`
	}
	StackExchange struct {
		APIURL string `env:"STACKEXCHANGE_API_URL" envDefault:"https://api.stackexchange.com/2.3"`
		Site   string `env:"STACKEXCHANGE_SITE" envDefault:"stackoverflow"`
		Key    string `env:"STACKEXCHANGE_KEY"`
		Filter string `env:"STACKEXCHANGE_FILTER" envDefault:"withbody"`
	}
	Fetch struct {
		RetryMax   int           `env:"FETCH_RETRY_MAX" envDefault:"2"`
		RetryDelay time.Duration `env:"FETCH_RETRY_DELAY" envDefault:"1s"`
		CacheTTL   time.Duration `env:"FETCH_CACHE_TTL" envDefault:"60s"`
		Timeout    time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`
	}
	State struct {
		Backend string        `env:"STATE_BACKEND" envDefault:"sqlite"` // sqlite | memory
		TTL     time.Duration `env:"STATE_TTL" envDefault:"168h"`
	}
	Poller struct {
		Interval  time.Duration `env:"POLL_INTERVAL" envDefault:"5m"`
		BatchSize int           `env:"POLL_BATCH_SIZE" envDefault:"20"`
	}
	Queue struct {
		Partitions int `env:"QUEUE_PARTITIONS" envDefault:"8"`
		Depth      int `env:"QUEUE_DEPTH" envDefault:"64"`
	}
	Mailgun struct {
		APIBase     string `env:"MAILGUN_API_BASE"`
		Domain      string `env:"MAILGUN_DOMAIN"`
		APIKey      string `env:"MAILGUN_API_KEY"`
		SenderFrom  string `env:"MAILGUN_SENDER_FROM" envDefault:"repowatch <noreply@repowatch.local>"`
		TimeoutSecs int    `env:"MAILGUN_TIMEOUT_SECS" envDefault:"10"`
	}

	log   *zap.Logger
	creds map[string]string
}

func NewConfig(lc fx.Lifecycle, log *zap.Logger) *Config {
	cfg := &Config{log: log}
	if err := env.Parse(cfg); err != nil {
		log.Sugar().Panic(err)
	}

	creds, err := cfg.parseCreds()
	if err != nil {
		if cfg.Env == "development" {
			cfg.log.Sugar().Infof("%s (credentials will be set to default in development env)", err)
			creds = map[string]string{"admin": "password"}
		} else {
			cfg.log.Sugar().Panic(err)
		}
	}
	cfg.creds = creds

	return cfg
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	if cfg.BasicAuthCreds == "" {
		return nil, errors.New("BASIC_AUTH_CREDS envvar must be populated")
	}

	result := make(map[string]string)
	for _, cred := range strings.Split(cfg.BasicAuthCreds, ",") {
		user, pass, ok := strings.Cut(cred, ":")
		if !ok {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}
		result[strings.TrimSpace(user)] = strings.TrimSpace(pass)
	}

	return result, nil
}
