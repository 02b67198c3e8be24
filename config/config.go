// Package config loads pipemsg settings from a TOML file over built-in defaults.
//
// Only keys present in the file override a default; an empty file yields Default().
//
//	endpoint        = "pipemsg"
//	socket_dir      = "/run/pipemsg"
//	dial_timeout    = "5s"
//	max_instances   = 0
//	max_failures    = 5
//	accept_backoff  = "0s"
//	max_frame_bytes = 16777216
//	encoding        = "utf16"
//
//	[log]
//	level  = "info"
//	format = "console"
//	file   = ""        # rotate into this file instead of stderr
//
//	[metrics]
//	addr = ":9464"
//
//	[registry]
//	endpoints    = ["127.0.0.1:2379"]
//	service      = "pipemsg"
//	ttl          = 10
//	weight       = 1
//	dial_timeout = "5s"
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"pipemsg/codec"
	"pipemsg/logging"
	"pipemsg/protocol"
)

type Config struct {
	Endpoint      string
	SocketDir     string
	DialTimeout   time.Duration
	MaxInstances  int
	MaxFailures   int
	AcceptBackoff time.Duration
	MaxFrameBytes uint32
	Encoding      codec.CodecType

	Log      logging.Config
	Metrics  MetricsConfig
	Registry RegistryConfig
}

type MetricsConfig struct {
	// Addr serves /metrics when non-empty.
	Addr string
}

type RegistryConfig struct {
	// Endpoints are etcd addresses. Discovery is disabled when empty.
	Endpoints   []string
	Service     string
	TTL         int64
	Weight      int
	DialTimeout time.Duration
}

// Enabled reports whether an etcd registry is configured.
func (r RegistryConfig) Enabled() bool {
	return len(r.Endpoints) > 0
}

func Default() Config {
	return Config{
		Endpoint:      "pipemsg",
		DialTimeout:   5000 * time.Millisecond,
		MaxFailures:   5,
		MaxFrameBytes: protocol.DefaultLimits().MaxFrameBytes,
		Encoding:      codec.CodecTypeUTF16,
		Log:           logging.DefaultConfig(),
		Registry: RegistryConfig{
			Service:     "pipemsg",
			TTL:         10,
			Weight:      1,
			DialTimeout: 5 * time.Second,
		},
	}
}

// Limits returns the frame limits derived from MaxFrameBytes.
func (c Config) Limits() protocol.Limits {
	return protocol.Limits{MaxFrameBytes: c.MaxFrameBytes}
}

func (c Config) Codec() codec.TextCodec {
	return codec.GetCodec(c.Encoding)
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Endpoint) == "" {
		errs = append(errs, errors.New("endpoint must not be empty"))
	}
	if c.DialTimeout <= 0 {
		errs = append(errs, errors.New("dial_timeout must be positive"))
	}
	if c.MaxInstances < 0 {
		errs = append(errs, errors.New("max_instances must not be negative"))
	}
	if c.MaxFailures < 0 {
		errs = append(errs, errors.New("max_failures must not be negative"))
	}
	if c.AcceptBackoff < 0 {
		errs = append(errs, errors.New("accept_backoff must not be negative"))
	}
	if c.MaxFrameBytes == 0 {
		errs = append(errs, errors.New("max_frame_bytes must be positive"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Registry.Enabled() {
		if strings.TrimSpace(c.Registry.Service) == "" {
			errs = append(errs, errors.New("registry.service must not be empty"))
		}
		if c.Registry.TTL <= 0 {
			errs = append(errs, errors.New("registry.ttl must be positive"))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// config.toml key mapping; durations are strings parsed by time.ParseDuration.
type fileConfig struct {
	Endpoint      string `toml:"endpoint"`
	SocketDir     string `toml:"socket_dir"`
	DialTimeout   string `toml:"dial_timeout"`
	MaxInstances  int    `toml:"max_instances"`
	MaxFailures   int    `toml:"max_failures"`
	AcceptBackoff string `toml:"accept_backoff"`
	MaxFrameBytes uint32 `toml:"max_frame_bytes"`
	Encoding      string `toml:"encoding"`

	Log      logging.Config `toml:"log"`
	Metrics  metricsFile    `toml:"metrics"`
	Registry registryFile   `toml:"registry"`
}

type metricsFile struct {
	Addr string `toml:"addr"`
}

type registryFile struct {
	Endpoints   []string `toml:"endpoints"`
	Service     string   `toml:"service"`
	TTL         int64    `toml:"ttl"`
	Weight      int      `toml:"weight"`
	DialTimeout string   `toml:"dial_timeout"`
}

// Load reads path over Default(). An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := apply(&cfg, raw, meta); err != nil {
		return Config{}, fmt.Errorf("load config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse is Load for TOML held in memory.
func Parse(data string) (Config, error) {
	cfg := Default()
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := apply(&cfg, raw, meta); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func apply(cfg *Config, raw fileConfig, meta toml.MetaData) error {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("endpoint") {
		cfg.Endpoint = strings.TrimSpace(raw.Endpoint)
	}
	if meta.IsDefined("socket_dir") {
		cfg.SocketDir = strings.TrimSpace(raw.SocketDir)
	}
	if meta.IsDefined("dial_timeout") {
		d, err := parseDuration("dial_timeout", raw.DialTimeout)
		if err != nil {
			return err
		}
		cfg.DialTimeout = d
	}
	if meta.IsDefined("max_instances") {
		cfg.MaxInstances = raw.MaxInstances
	}
	if meta.IsDefined("max_failures") {
		cfg.MaxFailures = raw.MaxFailures
	}
	if meta.IsDefined("accept_backoff") {
		d, err := parseDuration("accept_backoff", raw.AcceptBackoff)
		if err != nil {
			return err
		}
		cfg.AcceptBackoff = d
	}
	if meta.IsDefined("max_frame_bytes") {
		cfg.MaxFrameBytes = raw.MaxFrameBytes
	}
	if meta.IsDefined("encoding") {
		t, err := codec.ParseCodecType(raw.Encoding)
		if err != nil {
			return err
		}
		cfg.Encoding = t
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.TrimSpace(raw.Log.Format)
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.File = strings.TrimSpace(raw.Log.File)
	}
	if meta.IsDefined("log", "max_size_mb") {
		cfg.Log.MaxSizeMB = raw.Log.MaxSizeMB
	}
	if meta.IsDefined("log", "max_backups") {
		cfg.Log.MaxBackups = raw.Log.MaxBackups
	}
	if meta.IsDefined("log", "max_age_days") {
		cfg.Log.MaxAgeDays = raw.Log.MaxAgeDays
	}
	if meta.IsDefined("log", "compress") {
		cfg.Log.Compress = raw.Log.Compress
	}

	if meta.IsDefined("metrics", "addr") {
		cfg.Metrics.Addr = strings.TrimSpace(raw.Metrics.Addr)
	}

	if meta.IsDefined("registry", "endpoints") {
		cfg.Registry.Endpoints = raw.Registry.Endpoints
	}
	if meta.IsDefined("registry", "service") {
		cfg.Registry.Service = strings.TrimSpace(raw.Registry.Service)
	}
	if meta.IsDefined("registry", "ttl") {
		cfg.Registry.TTL = raw.Registry.TTL
	}
	if meta.IsDefined("registry", "weight") {
		cfg.Registry.Weight = raw.Registry.Weight
	}
	if meta.IsDefined("registry", "dial_timeout") {
		d, err := parseDuration("registry.dial_timeout", raw.Registry.DialTimeout)
		if err != nil {
			return err
		}
		cfg.Registry.DialTimeout = d
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
