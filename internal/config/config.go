package config

import "time"

// Config holds client configuration values.
type Config struct {
	// APIBaseURL is the backend REST base, e.g. http://localhost:5000.
	APIBaseURL string `mapstructure:"api_base_url" yaml:"api_base_url"`
	// SocketURL is the push-channel websocket endpoint.
	SocketURL string `mapstructure:"socket_url" yaml:"socket_url"`
	// StatePath is the sqlite file holding local session state.
	StatePath string `mapstructure:"state_path" yaml:"state_path"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`

	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// PollInterval drives the incremental message poll while joined.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// MatchRetryInitial is the delay before the first re-request after a
	// "waiting" response; MatchRetry is the steady re-request interval.
	MatchRetryInitial time.Duration `mapstructure:"match_retry_initial" yaml:"match_retry_initial"`
	MatchRetry        time.Duration `mapstructure:"match_retry" yaml:"match_retry"`
	// ActiveProbeInterval is the coarse fallback probe hitting check-active
	// while a match search is in flight.
	ActiveProbeInterval time.Duration `mapstructure:"active_probe_interval" yaml:"active_probe_interval"`

	ReconnectAttempts int           `mapstructure:"reconnect_attempts" yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	ReconnectDelayMax time.Duration `mapstructure:"reconnect_delay_max" yaml:"reconnect_delay_max"`
}

// Default returns configuration with reasonable starter defaults.
// The intervals are tunables, not load-tested constants.
func Default() Config {
	return Config{
		APIBaseURL:          "http://localhost:5000",
		SocketURL:           "ws://localhost:5000/ws",
		StatePath:           "hobbymatch.db",
		LogLevel:            "info",
		RequestTimeout:      10 * time.Second,
		PollInterval:        time.Second,
		MatchRetryInitial:   5 * time.Second,
		MatchRetry:          3 * time.Second,
		ActiveProbeInterval: 1500 * time.Millisecond,
		ReconnectAttempts:   10,
		ReconnectDelay:      time.Second,
		ReconnectDelayMax:   5 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.SocketURL != "" {
		c.SocketURL = other.SocketURL
	}
	if other.StatePath != "" {
		c.StatePath = other.StatePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.PollInterval != 0 {
		c.PollInterval = other.PollInterval
	}
	if other.MatchRetryInitial != 0 {
		c.MatchRetryInitial = other.MatchRetryInitial
	}
	if other.MatchRetry != 0 {
		c.MatchRetry = other.MatchRetry
	}
	if other.ActiveProbeInterval != 0 {
		c.ActiveProbeInterval = other.ActiveProbeInterval
	}
	if other.ReconnectAttempts != 0 {
		c.ReconnectAttempts = other.ReconnectAttempts
	}
	if other.ReconnectDelay != 0 {
		c.ReconnectDelay = other.ReconnectDelay
	}
	if other.ReconnectDelayMax != 0 {
		c.ReconnectDelayMax = other.ReconnectDelayMax
	}
}
