package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vpsmonitor/vps-agent/internal/errors"
)

const (
	DefaultAPIURL          = "https://vps-monitor-api.gp96123.workers.dev"
	DefaultMonitorInterval = 60
	DefaultLogFile         = "/var/log/vps-monitor-agent.log"
	DefaultLogLevel        = "info"
	DefaultLocation        = "unknown"
	DefaultDescription     = "vps-agent auto-registered"
	DefaultIPLookupURL     = "http://ipinfo.io/ip"
	DefaultEnvPrefix       = "VPS_AGENT"

	// MinMonitorInterval is what zero or negative intervals are raised to.
	MinMonitorInterval = time.Second
	// MaxMonitorInterval caps intervals before they are converted to a
	// Duration.
	MaxMonitorInterval = 24 * time.Hour
)

// Config is read once at startup and never mutated afterwards. Components
// receive it by value.
type Config struct {
	ServerName      string
	APIURL          string
	MonitorInterval time.Duration
	LogFile         string
	LogLevel        string
	Location        string
	Description     string
	IPLookupURL     string
	MetricsAddr     string
	PIDFile         string

	// Adjustments lists values Load changed to keep the config usable, for
	// logging once the logger is up.
	Adjustments []string
}

type fileConfig struct {
	ServerName      string `mapstructure:"server_name"`
	APIURL          string `mapstructure:"api_url"`
	MonitorInterval int    `mapstructure:"monitor_interval"`
	LogFile         string `mapstructure:"log_file"`
	LogLevel        string `mapstructure:"log_level"`
	Location        string `mapstructure:"location"`
	Description     string `mapstructure:"description"`
	IPLookupURL     string `mapstructure:"ip_lookup_url"`
	MetricsAddr     string `mapstructure:"metrics_addr"`
	PIDFile         string `mapstructure:"pid_file"`
}

// Load reads the JSON configuration file at path, applies defaults and
// VPS_AGENT_* environment overrides, and validates the result.
func Load(path string, opts ...Option) (Config, error) {
	errFactory := errors.New()

	o := options{
		hostname: os.Hostname,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if strings.TrimSpace(path) == "" {
		return Config{}, errFactory.WithMessage(errors.ErrMissingConfig, "config file path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return Config{}, errFactory.Wrap(errors.ErrMissingConfig, err).
			WithMessage(fmt.Sprintf("config file not found: %s", path))
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(DefaultEnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("server_name", defaultServerName(o.hostname))
	v.SetDefault("api_url", DefaultAPIURL)
	v.SetDefault("monitor_interval", DefaultMonitorInterval)
	v.SetDefault("log_file", DefaultLogFile)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("location", DefaultLocation)
	v.SetDefault("description", DefaultDescription)
	v.SetDefault("ip_lookup_url", DefaultIPLookupURL)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("pid_file", "")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	var raw fileConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	cfg := Config{
		ServerName:  strings.TrimSpace(raw.ServerName),
		APIURL:      strings.TrimRight(strings.TrimSpace(raw.APIURL), "/"),
		LogFile:     raw.LogFile,
		LogLevel:    strings.ToLower(strings.TrimSpace(raw.LogLevel)),
		Location:    raw.Location,
		Description: raw.Description,
		IPLookupURL: strings.TrimSpace(raw.IPLookupURL),
		MetricsAddr: strings.TrimSpace(raw.MetricsAddr),
		PIDFile:     strings.TrimSpace(raw.PIDFile),
	}

	switch seconds := raw.MonitorInterval; {
	case seconds < int(MinMonitorInterval/time.Second):
		cfg.Adjustments = append(cfg.Adjustments,
			fmt.Sprintf("monitor_interval %d is below the minimum, using %s", seconds, MinMonitorInterval))
		cfg.MonitorInterval = MinMonitorInterval
	case seconds > int(MaxMonitorInterval/time.Second):
		cfg.Adjustments = append(cfg.Adjustments,
			fmt.Sprintf("monitor_interval %d is above the maximum, using %s", seconds, MaxMonitorInterval))
		cfg.MonitorInterval = MaxMonitorInterval
	default:
		cfg.MonitorInterval = time.Duration(seconds) * time.Second
	}
	if cfg.Location == "" {
		cfg.Location = DefaultLocation
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the fields the agent cannot run without.
func (c Config) Validate() error {
	errFactory := errors.New()

	if c.ServerName == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "server_name must not be empty")
	}
	if c.MonitorInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "monitor_interval must be positive")
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if err := validateHTTPURL(c.APIURL); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err).WithData("api_url")
	}
	if c.IPLookupURL != "" {
		if err := validateHTTPURL(c.IPLookupURL); err != nil {
			return errFactory.Wrap(errors.ErrInvalidConfig, err).WithData("ip_lookup_url")
		}
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}

	return nil
}

func defaultServerName(hostname func() (string, error)) string {
	name, err := hostname()
	if err != nil || strings.TrimSpace(name) == "" {
		return "localhost"
	}

	return name
}
