// Package config holds the environment-driven runtime configuration.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Host             string        `envconfig:"QUICKCHAT_HOST" default:"0.0.0.0"`
	Port             int           `envconfig:"QUICKCHAT_PORT" default:"42069"`
	DiscoveryPort    int           `envconfig:"QUICKCHAT_DISCOVERY_PORT" default:"8888"`
	DiscoveryTimeout time.Duration `envconfig:"QUICKCHAT_DISCOVERY_TIMEOUT" default:"5s"`
	MetricsAddr      string        `envconfig:"QUICKCHAT_METRICS_ADDR" default:":9090"`
	HistoryLimit     int           `envconfig:"QUICKCHAT_HISTORY_LIMIT" default:"0"`
	EventBuffer      int           `envconfig:"QUICKCHAT_EVENT_BUFFER" default:"128"`
	OutboxSize       int           `envconfig:"QUICKCHAT_OUTBOX_SIZE" default:"64"`
	LogLevel         string        `envconfig:"QUICKCHAT_LOG_LEVEL" default:"info"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// ListenAddr is the chat listener's host:port.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
