package apiserver

import (
	"net"
	"strconv"
	"time"

	"github.com/Metaculus/metaculus-sub005/internal/config"
)

const (
	// DefaultMaxBodyBytes limits request payloads to 1 MB.
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds handler writes, including preview fetches.
	DefaultWriteTimeout = 30 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
)

// Settings captures runtime configuration for the API server.
type Settings struct {
	Enabled      bool
	Host         string
	Port         int
	DefaultUser  int64
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SettingsFromConfig builds Settings from the project's .keyfactors config,
// which has already absorbed KEYFACTORS_* overrides.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{
		Enabled: true,
		Host:    config.DefaultHost,
		Port:    config.DefaultPort,
	}
	if cfg != nil {
		settings.Enabled = cfg.ServerEnabled()
		settings.Host = cfg.Project.Server.Host
		settings.Port = cfg.Project.Server.Port
		settings.DefaultUser = cfg.Project.User.ID
	}
	settings.normalize()
	return settings
}

func (s *Settings) normalize() {
	if s.Host == "" {
		s.Host = config.DefaultHost
	}
	if s.Port < 0 || s.Port > 65535 {
		s.Port = config.DefaultPort
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}
