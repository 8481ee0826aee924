// Package config loads agent configuration from an optional YAML file
// overlaid with environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging"
	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging/hec"
	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging/udp"
)

const (
	TransportUDP = "udp"
	TransportHEC = "hec"
)

// ConfigPathEnv names the variable consulted when no --config flag is given.
const ConfigPathEnv = "SPLUNK_AGENT_CONFIG"

type Config struct {
	Threshold  logging.Level   `mapstructure:"threshold"`
	Format     string          `mapstructure:"format"`
	Transports []string        `mapstructure:"transports"`
	UDP        UDPConfig       `mapstructure:"udp"`
	HEC        HECConfig       `mapstructure:"hec"`
	Forwarder  ForwarderConfig `mapstructure:"forwarder"`
}

type UDPConfig struct {
	HostName string `mapstructure:"host_name"`
	Port     int    `mapstructure:"port"`
}

type HECConfig struct {
	CollectorURL    string `mapstructure:"collector_url"`
	Token           string `mapstructure:"token"`
	TimeoutMillis   int    `mapstructure:"timeout_ms"`
	BatchSizeCount  int    `mapstructure:"batch_size_count"`
	BatchIntervalMs int    `mapstructure:"batch_interval_ms"`
	Gzip            bool   `mapstructure:"gzip"`
}

type ForwarderConfig struct {
	LogRootPath     string        `mapstructure:"log_root_path"`
	ScanInterval    time.Duration `mapstructure:"scan_interval"`
	Workers         int           `mapstructure:"workers"`
	FileQueueSize   int           `mapstructure:"file_queue_size"`
	FileIdleTimeout time.Duration `mapstructure:"file_idle_timeout"`
}

func Default() *Config {
	return &Config{
		Threshold:  logging.LevelInformation,
		Format:     "text",
		Transports: []string{TransportHEC},
		HEC: HECConfig{
			TimeoutMillis:   5000,
			BatchSizeCount:  100,
			BatchIntervalMs: 1000,
		},
		Forwarder: ForwarderConfig{
			LogRootPath:   "/var/log/app",
			ScanInterval:  30 * time.Second,
			Workers:       4,
			FileQueueSize: 50,
		},
	}
}

// Load reads path (may be empty), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := decodeYAML(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(raw []byte, cfg *Config) error {
	var values map[string]interface{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return err
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			levelHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(values)
}

func levelHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(logging.LevelNone) {
		return data, nil
	}
	return logging.ParseLevel(data.(string))
}

func applyEnv(cfg *Config) error {
	if v := getEnv("SPLUNK_THRESHOLD", ""); v != "" {
		level, err := logging.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("SPLUNK_THRESHOLD: %w", err)
		}
		cfg.Threshold = level
	}

	cfg.Format = getEnv("SPLUNK_FORMAT", cfg.Format)
	cfg.Transports = getEnvSlice("SPLUNK_TRANSPORTS", cfg.Transports)

	cfg.UDP.HostName = getEnv("SPLUNK_UDP_HOST", cfg.UDP.HostName)
	cfg.HEC.CollectorURL = getEnv("SPLUNK_HEC_URL", cfg.HEC.CollectorURL)
	cfg.HEC.Token = getEnv("SPLUNK_HEC_TOKEN", cfg.HEC.Token)
	cfg.Forwarder.LogRootPath = getEnv("LOG_PATH", cfg.Forwarder.LogRootPath)

	ints := []struct {
		key string
		dst *int
	}{
		{"SPLUNK_UDP_PORT", &cfg.UDP.Port},
		{"SPLUNK_HEC_TIMEOUT_MS", &cfg.HEC.TimeoutMillis},
		{"SPLUNK_BATCH_SIZE", &cfg.HEC.BatchSizeCount},
		{"SPLUNK_BATCH_INTERVAL_MS", &cfg.HEC.BatchIntervalMs},
		{"WORKERS", &cfg.Forwarder.Workers},
		{"QUEUE_SIZE", &cfg.Forwarder.FileQueueSize},
	}
	for _, v := range ints {
		if err := getEnvAsInt(v.key, v.dst); err != nil {
			return err
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SCAN_INTERVAL", &cfg.Forwarder.ScanInterval},
		{"FILE_IDLE_TIMEOUT", &cfg.Forwarder.FileIdleTimeout},
	}
	for _, v := range durations {
		if err := getEnvAsDuration(v.key, v.dst); err != nil {
			return err
		}
	}

	return getEnvAsBool("SPLUNK_HEC_GZIP", &cfg.HEC.Gzip)
}

func (c *Config) Enabled(transport string) bool {
	for _, t := range c.Transports {
		if strings.EqualFold(strings.TrimSpace(t), transport) {
			return true
		}
	}
	return false
}

// Validate reports configuration errors that must stop sender creation.
func (c *Config) Validate() error {
	if len(c.Transports) == 0 {
		return fmt.Errorf("no transports configured")
	}
	for _, t := range c.Transports {
		switch strings.ToLower(strings.TrimSpace(t)) {
		case TransportUDP, TransportHEC:
		default:
			return fmt.Errorf("unknown transport %q", t)
		}
	}

	if c.Enabled(TransportUDP) {
		if err := c.UDPSender().Validate(); err != nil {
			return err
		}
	}

	if c.Enabled(TransportHEC) {
		if strings.TrimSpace(c.HEC.CollectorURL) == "" {
			return fmt.Errorf("hec collector_url is required")
		}
		if c.HEC.TimeoutMillis <= 0 {
			return fmt.Errorf("hec timeout_ms must be positive, got %d", c.HEC.TimeoutMillis)
		}
		if c.HEC.BatchSizeCount <= 0 {
			return fmt.Errorf("hec batch_size_count must be positive, got %d", c.HEC.BatchSizeCount)
		}
		if c.HEC.BatchIntervalMs <= 0 {
			return fmt.Errorf("hec batch_interval_ms must be positive, got %d", c.HEC.BatchIntervalMs)
		}
	}

	if c.Forwarder.Workers <= 0 {
		return fmt.Errorf("forwarder workers must be positive, got %d", c.Forwarder.Workers)
	}
	if c.Forwarder.ScanInterval <= 0 {
		return fmt.Errorf("forwarder scan_interval must be positive, got %s", c.Forwarder.ScanInterval)
	}
	if c.Forwarder.FileQueueSize <= 0 {
		return fmt.Errorf("forwarder file_queue_size must be positive, got %d", c.Forwarder.FileQueueSize)
	}
	return nil
}

func (c *Config) UDPSender() udp.Config {
	return udp.Config{
		HostName: c.UDP.HostName,
		Port:     c.UDP.Port,
	}
}

func (c *Config) HECSender() hec.Config {
	return hec.Config{
		CollectorURL:  c.HEC.CollectorURL,
		Token:         c.HEC.Token,
		Timeout:       time.Duration(c.HEC.TimeoutMillis) * time.Millisecond,
		BatchSize:     c.HEC.BatchSizeCount,
		BatchInterval: time.Duration(c.HEC.BatchIntervalMs) * time.Millisecond,
		Gzip:          c.HEC.Gzip,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt overwrites dst when key is set; an unparsable value is an error.
func getEnvAsInt(key string, dst *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	*dst = result
	return nil
}

func getEnvAsBool(key string, dst *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	*dst = result
	return nil
}

func getEnvAsDuration(key string, dst *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	result, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	*dst = result
	return nil
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
