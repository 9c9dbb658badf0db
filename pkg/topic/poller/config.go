package poller

import (
	"log/slog"
	"net/http"
	"time"
)

// Config 控制轮询行为。
type Config struct {
	// BaseURL 是 relay 地址，topic URL 为 <BaseURL>/topic/<id>。
	BaseURL      string
	PollInterval time.Duration
	Timeout      time.Duration
	// MaxFailures 是连续传输错误的上限，达到后 topic 以错误结算。
	MaxFailures int
	Client      *http.Client
	Logger      *slog.Logger
	Metrics     *Metrics
}

// DefaultConfig 返回默认配置，BaseURL 需调用方填写。
func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Second,
		Timeout:      5 * time.Minute,
		MaxFailures:  5,
	}
}

func (c *Config) normalize() Config {
	cfg := *c
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}
