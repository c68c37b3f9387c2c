package reactor

import (
	"fmt"
	"time"
)

const (
	DefaultAddress        = "0.0.0.0"
	DefaultPort           = 8080
	DefaultBacklog        = 1024
	DefaultChunkSize      = 4096
	DefaultReadBufferSize = 64 * 1024
	DefaultMaxEvents      = 256
	DefaultIdleTimeout    = 60 * time.Second
)

// Config holds the readiness source parameters.
//
// Default values (applied by New if zero):
//   - Address: 0.0.0.0
//   - Port: 8080 (set -1 to pick an ephemeral port)
//   - Backlog: 1024
//   - ChunkSize: 4 KiB
//   - ReadBufferSize: 64 KiB
//   - MaxEvents: 256
//   - IdleTimeout: 60s
//   - EvictionInterval: derived from IdleTimeout
//   - AcceptRate / AcceptBurst: unlimited
type Config struct {
	// Address is the IP address or host name to bind.
	Address string `mapstructure:"address" yaml:"address"`

	// Port is the TCP port to listen on. -1 binds an ephemeral port.
	Port int `mapstructure:"port" validate:"min=-1,max=65535" yaml:"port"`

	// Backlog is the listen(2) backlog.
	Backlog int `mapstructure:"backlog" validate:"min=0" yaml:"backlog"`

	// ChunkSize is the chunk size of each record's inbound and outbound
	// buffers.
	ChunkSize int `mapstructure:"chunk_size" validate:"min=0" yaml:"chunk_size"`

	// ReadBufferSize is the size of the scratch buffer used for read(2).
	ReadBufferSize int `mapstructure:"read_buffer_size" validate:"min=0" yaml:"read_buffer_size"`

	// MaxEvents bounds the events returned by one epoll_wait(2).
	MaxEvents int `mapstructure:"max_events" validate:"min=0" yaml:"max_events"`

	// IdleTimeout closes connections with no activity for this long.
	// A negative value disables idle eviction.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// EvictionInterval is how often idle connections are looked for.
	EvictionInterval time.Duration `mapstructure:"eviction_interval" validate:"min=0" yaml:"eviction_interval"`

	// AcceptRate is the sustained number of accepted connections per
	// second. 0 means unlimited.
	AcceptRate uint `mapstructure:"accept_rate" yaml:"accept_rate"`

	// AcceptBurst is the number of connections that may be accepted at
	// once above AcceptRate. 0 defaults to AcceptRate.
	AcceptBurst uint `mapstructure:"accept_burst" yaml:"accept_burst"`
}

func (c *Config) applyDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Backlog <= 0 {
		c.Backlog = DefaultBacklog
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = DefaultMaxEvents
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
}

func (c *Config) validate() error {
	if c.Port < -1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535, or -1", c.Port)
	}
	if c.EvictionInterval < 0 {
		return fmt.Errorf("invalid eviction interval %v: must be >= 0", c.EvictionInterval)
	}
	return nil
}

// bindPort translates Port into the value passed to bind(2).
func (c *Config) bindPort() int {
	if c.Port < 0 {
		return 0
	}
	return c.Port
}
