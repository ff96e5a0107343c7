package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NodePath81/hyperspeed/internal/util"
)

const (
	defaultServerAddr           = "0.0.0.0"
	defaultServerPort           = 8080
	defaultServerDownloadChunk  = "1MiB"
	defaultServerMaxConnections = 256

	defaultClientTarget              = "127.0.0.1"
	defaultClientPort                = 8080
	defaultClientStreams             = 4
	defaultClientDuration            = 10 * time.Second
	defaultClientUploadChunk         = "1MiB"
	defaultClientProbeTimeout        = 2 * time.Second
	defaultClientIdleProbeCount      = 20
	defaultClientIdleProbeInterval   = 50 * time.Millisecond
	defaultClientLoadedProbeInterval = 200 * time.Millisecond
	defaultClientReportInterval      = 100 * time.Millisecond
	defaultClientSettleDelay         = 500 * time.Millisecond

	defaultLogLevel  = "info"
	defaultLogFormat = "text"

	maxChunkBytes = 64 << 20

	// EnvServerPort overrides server.bind_port when set.
	EnvServerPort = "SERVER_PORT"
)

type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	switch value.Tag {
	case "!!int", "!!float":
		var secs float64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	default:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		if raw == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	BindAddr        string   `yaml:"bind_addr"`
	BindPort        int      `yaml:"bind_port"`
	StaticDir       string   `yaml:"static_dir"`
	DownloadChunk   string   `yaml:"download_chunk"`
	StreamRateLimit string   `yaml:"stream_rate_limit"`
	MaxConnections  int      `yaml:"max_connections"`
	AuthToken       string   `yaml:"auth_token"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	GeoIPDB         string   `yaml:"geoip_db"`

	// AllowRemoteTargets lets control clients point runs at other hosts.
	AllowRemoteTargets *bool `yaml:"allow_remote_targets"`

	DownloadChunkBytes int    `yaml:"-"`
	StreamRateLimitBps uint64 `yaml:"-"`
}

func (s ServerConfig) RemoteTargetsAllowed() bool {
	return util.BoolValue(s.AllowRemoteTargets, false)
}

type ClientConfig struct {
	Target              string   `yaml:"target"`
	Port                int      `yaml:"port"`
	Streams             int      `yaml:"streams"`
	Duration            Duration `yaml:"duration"`
	UploadChunk         string   `yaml:"upload_chunk"`
	ProbeTimeout        Duration `yaml:"probe_timeout"`
	IdleProbeCount      int      `yaml:"idle_probe_count"`
	IdleProbeInterval   Duration `yaml:"idle_probe_interval"`
	LoadedProbeInterval Duration `yaml:"loaded_probe_interval"`
	ReportInterval      Duration `yaml:"report_interval"`
	SettleDelay         Duration `yaml:"settle_delay"`
	SocketBuffer        string   `yaml:"socket_buffer"`

	UploadChunkBytes  int `yaml:"-"`
	SocketBufferBytes int `yaml:"-"`
}

type MetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

func (m MetricsConfig) IsEnabled() bool {
	return util.BoolValue(m.Enabled, true)
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig reads, defaults and validates the YAML file at path.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(raw)
}

// Parse decodes a YAML document into a validated Config.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// ApplyEnv applies environment overrides using lookup (os.LookupEnv in
// production). An invalid value is reported and left unapplied.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	raw, ok := lookup(EnvServerPort)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("%s=%q is not a valid port", EnvServerPort, raw)
	}
	c.Server.BindPort = port
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.BindAddr == "" {
		c.Server.BindAddr = defaultServerAddr
	}
	if c.Server.BindPort == 0 {
		c.Server.BindPort = defaultServerPort
	}
	if c.Server.DownloadChunk == "" {
		c.Server.DownloadChunk = defaultServerDownloadChunk
	}
	if c.Server.MaxConnections == 0 {
		c.Server.MaxConnections = defaultServerMaxConnections
	}

	if c.Client.Target == "" {
		c.Client.Target = defaultClientTarget
	}
	if c.Client.Port == 0 {
		c.Client.Port = defaultClientPort
	}
	if c.Client.Streams == 0 {
		c.Client.Streams = defaultClientStreams
	}
	if c.Client.Duration == 0 {
		c.Client.Duration = Duration(defaultClientDuration)
	}
	if c.Client.UploadChunk == "" {
		c.Client.UploadChunk = defaultClientUploadChunk
	}
	if c.Client.ProbeTimeout == 0 {
		c.Client.ProbeTimeout = Duration(defaultClientProbeTimeout)
	}
	if c.Client.IdleProbeCount == 0 {
		c.Client.IdleProbeCount = defaultClientIdleProbeCount
	}
	if c.Client.IdleProbeInterval == 0 {
		c.Client.IdleProbeInterval = Duration(defaultClientIdleProbeInterval)
	}
	if c.Client.LoadedProbeInterval == 0 {
		c.Client.LoadedProbeInterval = Duration(defaultClientLoadedProbeInterval)
	}
	if c.Client.ReportInterval == 0 {
		c.Client.ReportInterval = Duration(defaultClientReportInterval)
	}
	if c.Client.SettleDelay == 0 {
		c.Client.SettleDelay = Duration(defaultClientSettleDelay)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}

func (c *Config) validate() error {
	c.Server.BindAddr = strings.TrimSpace(c.Server.BindAddr)
	if c.Server.BindPort <= 0 || c.Server.BindPort > 65535 {
		return errors.New("server.bind_port must be in 1..65535")
	}
	if c.Server.MaxConnections < 0 {
		return errors.New("server.max_connections must be >= 0")
	}
	chunk, err := ParseSize(c.Server.DownloadChunk)
	if err != nil {
		return fmt.Errorf("server.download_chunk: %w", err)
	}
	if chunk <= 0 || chunk > maxChunkBytes {
		return fmt.Errorf("server.download_chunk must be in 1..%d bytes", maxChunkBytes)
	}
	c.Server.DownloadChunkBytes = int(chunk)
	rate, err := ParseBandwidth(c.Server.StreamRateLimit)
	if err != nil {
		return fmt.Errorf("server.stream_rate_limit: %w", err)
	}
	c.Server.StreamRateLimitBps = rate

	c.Client.Target = strings.TrimSpace(c.Client.Target)
	if c.Client.Port <= 0 || c.Client.Port > 65535 {
		return errors.New("client.port must be in 1..65535")
	}
	chunk, err = ParseSize(c.Client.UploadChunk)
	if err != nil {
		return fmt.Errorf("client.upload_chunk: %w", err)
	}
	if chunk <= 0 || chunk > maxChunkBytes {
		return fmt.Errorf("client.upload_chunk must be in 1..%d bytes", maxChunkBytes)
	}
	c.Client.UploadChunkBytes = int(chunk)
	buf, err := ParseSize(c.Client.SocketBuffer)
	if err != nil {
		return fmt.Errorf("client.socket_buffer: %w", err)
	}
	c.Client.SocketBufferBytes = int(buf)
	if c.Client.ProbeTimeout.Duration() < 0 {
		return errors.New("client.probe_timeout must be >= 0")
	}
	if c.Client.IdleProbeCount < 0 {
		return errors.New("client.idle_probe_count must be >= 0")
	}
	for name, d := range map[string]Duration{
		"idle_probe_interval":   c.Client.IdleProbeInterval,
		"loaded_probe_interval": c.Client.LoadedProbeInterval,
		"report_interval":       c.Client.ReportInterval,
		"settle_delay":          c.Client.SettleDelay,
	} {
		if d.Duration() < 0 {
			return fmt.Errorf("client.%s must be >= 0", name)
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}
