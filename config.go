package wsserial

import (
	"crypto/tls"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// DefaultPort is the port the device proxy listens on.
const DefaultPort = 444

// Config holds the configuration for a Manager and the channels it creates
type Config struct {
	Port             int
	Scheme           string // "wss" or "ws"
	BaudRate         int    // Used when no baud rate has been persisted
	Encoding         string // Text encoding for message events and WriteString
	Trace            bool   // Hex dump every frame at debug level
	HandshakeTimeout time.Duration
	TLSConfig        *tls.Config
	Dialer           *websocket.Dialer
	Logger           logrus.FieldLogger
	Store            Store
	Registerer       prometheus.Registerer
}

// Option is a functional option for configuring a Manager
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Port:     DefaultPort,
		Scheme:   "wss",
		BaudRate: 115200,
		Encoding: "utf-8",
		Logger:   logrus.StandardLogger(),
	}
}

// WithPort sets the proxy port appended to every endpoint
func WithPort(port int) Option {
	return func(c *Config) error {
		if port <= 0 || port > 65535 {
			return ErrInvalidConfig
		}
		c.Port = port
		return nil
	}
}

// WithScheme selects "wss" (default) or plain "ws"
func WithScheme(scheme string) Option {
	return func(c *Config) error {
		if scheme != "wss" && scheme != "ws" {
			return ErrInvalidConfig
		}
		c.Scheme = scheme
		return nil
	}
}

// WithBaudRate sets the baud rate sent on connect when none is persisted
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if rate <= 0 {
			return ErrInvalidBaudRate
		}
		c.BaudRate = rate
		return nil
	}
}

// WithEncoding sets the text encoding by its WHATWG name, e.g. "utf-8" or "latin1"
func WithEncoding(name string) Option {
	return func(c *Config) error {
		if _, err := lookupEncoding(name); err != nil {
			return err
		}
		c.Encoding = name
		return nil
	}
}

// WithTrace enables hex dumps of all frames
func WithTrace(enabled bool) Option {
	return func(c *Config) error {
		c.Trace = enabled
		return nil
	}
}

// WithHandshakeTimeout bounds the websocket handshake. Zero waits forever.
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.HandshakeTimeout = timeout
		return nil
	}
}

// WithTLSConfig sets the TLS client configuration used for wss endpoints
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Config) error {
		c.TLSConfig = cfg
		return nil
	}
}

// WithDialer replaces the websocket dialer entirely
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Config) error {
		if d == nil {
			return ErrInvalidConfig
		}
		c.Dialer = d
		return nil
	}
}

// WithLogger sets the diagnostics logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Config) error {
		if log == nil {
			return ErrInvalidConfig
		}
		c.Logger = log
		return nil
	}
}

// WithStore sets the durable store for devices and baud rate
func WithStore(s Store) Option {
	return func(c *Config) error {
		if s == nil {
			return ErrInvalidConfig
		}
		c.Store = s
		return nil
	}
}

// WithRegisterer registers the manager's metrics with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Config) error {
		c.Registerer = reg
		return nil
	}
}

func (c Config) dialer() *websocket.Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: c.HandshakeTimeout,
		TLSClientConfig:  c.TLSConfig,
	}
}
