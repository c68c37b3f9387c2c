package http1

const (
	// DefaultMaxHeaderBytes bounds the request line plus headers.
	DefaultMaxHeaderBytes = 64 * 1024

	// DefaultMaxBodyBytes bounds a decoded request body.
	DefaultMaxBodyBytes = 8 * 1024 * 1024
)

// Config bounds the size of accepted requests.
type Config struct {
	// MaxHeaderBytes is the maximum size of the header block, including the
	// request line and the terminating blank line.
	MaxHeaderBytes int `mapstructure:"max_header_bytes" validate:"min=0" yaml:"max_header_bytes"`

	// MaxBodyBytes is the maximum size of a request body, fixed-length or
	// chunked.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" validate:"min=0" yaml:"max_body_bytes"`
}

func (c *Config) applyDefaults() {
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
}
