// Package config loads the TOML configuration shared by the netcall command
// and embedding programs.
//
//	[server]
//	listen = "ws://0.0.0.0:5556/"
//	codec = "json"
//	timeoutMs = 5000
//
//	[server.rateLimit]
//	enabled = true
//	rate = 100.0
//	burst = 20
//
//	[client]
//	uri = "ws://127.0.0.1:5556/"
//	callTimeoutMs = 10000
//
//	[directory]
//	backend = "etcd"
//	endpoints = ["127.0.0.1:2379"]
//
//	[logging]
//	level = "debug"
//	development = true
package config

import (
	"fmt"
	"netcall/codec"
	"netcall/loadbalance"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"
)

// RateLimitConfig defines the server-wide token bucket.
type RateLimitConfig struct {
	Enabled bool    `toml:"enabled"`
	Rate    float64 `toml:"rate"` // Calls per second
	Burst   int     `toml:"burst"`
}

// ServerConfig defines the serving side.
type ServerConfig struct {
	Listen            string          `toml:"listen"`
	Codec             string          `toml:"codec"`
	Parallel          bool            `toml:"parallel"`
	TimeoutMS         int             `toml:"timeoutMs"` // 0 disables the dispatch timeout
	ShutdownTimeoutMS int             `toml:"shutdownTimeoutMs"`
	MaxMessageSize    int64           `toml:"maxMessageSize"`
	RateLimit         RateLimitConfig `toml:"rateLimit"`
}

// ClientConfig defines the calling side.
type ClientConfig struct {
	URI           string `toml:"uri"`
	Codec         string `toml:"codec"`
	CallTimeoutMS int    `toml:"callTimeoutMs"` // 0 means calls wait for their context only
	HeartbeatMS   int    `toml:"heartbeatMs"`   // tcp:// only
}

// DirectoryConfig defines object discovery. An empty backend disables it.
type DirectoryConfig struct {
	Backend       string   `toml:"backend"` // "", "memory" or "etcd"
	Endpoints     []string `toml:"endpoints"`
	DialTimeoutMS int      `toml:"dialTimeoutMs"`
	AdvertiseAddr string   `toml:"advertiseAddr"`
	TTLSeconds    int64    `toml:"ttlSeconds"`
	Balancer      string   `toml:"balancer"`
}

// LoggingConfig defines basic logging knobs.
type LoggingConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Config aggregates every section.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Client    ClientConfig    `toml:"client"`
	Directory DirectoryConfig `toml:"directory"`
	Logging   LoggingConfig   `toml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:            "ws://127.0.0.1:5556/",
			Codec:             "json",
			ShutdownTimeoutMS: 5000,
			RateLimit:         RateLimitConfig{Rate: 100, Burst: 20},
		},
		Client: ClientConfig{
			URI:   "ws://127.0.0.1:5556/",
			Codec: "json",
		},
		Directory: DirectoryConfig{
			DialTimeoutMS: 5000,
			TTLSeconds:    10,
			Balancer:      "consistentHash",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a TOML file on top of Default. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

// Parse decodes TOML text on top of Default.
func Parse(text string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(text, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys %s", strings.Join(keys, ", "))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Server.Listen == "" {
		return fmt.Errorf("config: server.listen required")
	}
	if _, err := codec.ByName(cfg.Server.Codec); err != nil {
		return fmt.Errorf("config: server.codec: %w", err)
	}
	if _, err := codec.ByName(cfg.Client.Codec); err != nil {
		return fmt.Errorf("config: client.codec: %w", err)
	}
	if cfg.Server.TimeoutMS < 0 || cfg.Server.ShutdownTimeoutMS < 0 || cfg.Client.CallTimeoutMS < 0 || cfg.Client.HeartbeatMS < 0 {
		return fmt.Errorf("config: timeouts must not be negative")
	}
	if rl := cfg.Server.RateLimit; rl.Enabled && (rl.Rate <= 0 || rl.Burst <= 0) {
		return fmt.Errorf("config: server.rateLimit needs a positive rate and burst")
	}

	switch cfg.Directory.Backend {
	case "", "memory":
	case "etcd":
		if len(cfg.Directory.Endpoints) == 0 {
			return fmt.Errorf("config: directory.endpoints required for etcd")
		}
	default:
		return fmt.Errorf("config: unknown directory.backend %q", cfg.Directory.Backend)
	}
	if _, err := loadbalance.ByName(cfg.Directory.Balancer); err != nil {
		return fmt.Errorf("config: directory.balancer: %w", err)
	}
	if cfg.Directory.TTLSeconds <= 0 {
		cfg.Directory.TTLSeconds = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if _, err := zapcore.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("config: logging.level: %w", err)
	}
	return nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (c ServerConfig) Timeout() time.Duration         { return millis(c.TimeoutMS) }
func (c ServerConfig) ShutdownTimeout() time.Duration { return millis(c.ShutdownTimeoutMS) }
func (c ClientConfig) CallTimeout() time.Duration     { return millis(c.CallTimeoutMS) }
func (c ClientConfig) Heartbeat() time.Duration       { return millis(c.HeartbeatMS) }
func (c DirectoryConfig) DialTimeout() time.Duration  { return millis(c.DialTimeoutMS) }
