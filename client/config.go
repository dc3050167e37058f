package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize/english"
	"github.com/hako/durafmt"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/coreperf-io/coreperf/client/errs"
)

const (
	// DefaultChannel is the release channel used if one is not specified.
	DefaultChannel = "prod"

	// DefaultExperimentsDir is where experiment directories are created if
	// experiments.dir is not specified.
	DefaultExperimentsDir = "experiments"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultProdEndpoint = "https://api.coreperf.io/v1"
)

// Environment variables overriding the api section of a config file.
const (
	envAPIKey   = "COREPERF_API_KEY"
	envChannel  = "COREPERF_CHANNEL"
	envEndpoint = "COREPERF_ENDPOINT"
)

// Report types an experiment can request.
const (
	ReportSummary    = "summary"
	ReportInstCounts = "inst_counts"
	ReportInstTrace  = "inst_trace"
)

var reportTypes = map[string]bool{
	ReportSummary:    true,
	ReportInstCounts: true,
	ReportInstTrace:  true,
}

// Config contains all settings for a coreperf client.
type Config struct {
	APIKey         string
	Channel        string
	Endpoint       string
	Timeout        time.Duration
	Channels       map[string]string
	ExperimentsDir string
	ReportTypes    []string
	Cores          map[string]string
	LogLevel       uint32
	LogSilent      bool
}

// String returns a human-readable summary of the settings, without the API
// key.
func (c Config) String() string {
	endpoint, err := c.ResolveEndpoint()
	if err != nil {
		endpoint = "unresolved"
	}
	return fmt.Sprintf("[Channel: %s, Endpoint: %s, Timeout: %s, Reports: %s, Dir: %s]",
		c.Channel, endpoint, durafmt.Parse(c.Timeout),
		english.WordSeries(c.ReportTypes, "and"), c.ExperimentsDir)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.BindEnv("api.key", envAPIKey)
	v.BindEnv("api.channel", envChannel)
	v.BindEnv("api.endpoint", envEndpoint)
	return v
}

// NewDefaultConfig creates a new Config with default settings.
func NewDefaultConfig() *Config {
	config := &Config{
		Channel:        DefaultChannel,
		Timeout:        defaultTimeout,
		ExperimentsDir: DefaultExperimentsDir,
		ReportTypes:    []string{ReportSummary},
		Channels: map[string]string{
			DefaultChannel: defaultProdEndpoint,
		},
		Cores: map[string]string{},
	}
	config.LogLevel = uint32(log.InfoLevel)
	return config
}

// GetLogLevel converts the level string to its corresponding int value. It
// returns an error if the level is invalid.
func GetLogLevel(level string) (uint32, error) {
	var l uint32
	switch strings.ToLower(level) {
	case "debug":
		l = uint32(log.DebugLevel)
	case "info":
		l = uint32(log.InfoLevel)
	case "warn":
		l = uint32(log.WarnLevel)
	case "error":
		l = uint32(log.ErrorLevel)
	default:
		return 0, errs.New(errs.Configuration, "invalid log.level setting %q", level)
	}
	return l, nil
}

// NewConfig creates a new Config with default settings and applies any
// settings from the given configuration file and the environment. An empty
// configFile applies the environment only.
func NewConfig(configFile string) (*Config, error) {
	v := newViper()
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.Wrapf(errs.Configuration, err, "failed to read config file %s", configFile)
		}
	}

	config := NewDefaultConfig()

	if err := parseAPIConfig(config, v); err != nil {
		return nil, err
	}

	if v.IsSet("channels") {
		for name, endpoint := range v.GetStringMapString("channels") {
			config.Channels[name] = endpoint
		}
	}

	if v.IsSet("experiments.dir") {
		config.ExperimentsDir = v.GetString("experiments.dir")
	}

	if v.IsSet("experiments.reports") {
		config.ReportTypes = v.GetStringSlice("experiments.reports")
	}

	if v.IsSet("cores") {
		for name, version := range v.GetStringMapString("cores") {
			config.Cores[name] = version
		}
	}

	if v.IsSet("log.level") {
		levelInt, err := GetLogLevel(v.GetString("log.level"))
		if err != nil {
			return nil, err
		}
		config.LogLevel = levelInt
	}

	if v.IsSet("log.silent") {
		config.LogSilent = v.GetBool("log.silent")
	}

	return config, nil
}

// parseAPIConfig parses the `api` section of a config file, including its
// environment overrides, and populates the given Config.
func parseAPIConfig(config *Config, v *viper.Viper) error {
	if v.IsSet("api.key") {
		config.APIKey = strings.TrimSpace(v.GetString("api.key"))
	}

	if v.IsSet("api.channel") {
		config.Channel = v.GetString("api.channel")
	}

	if v.IsSet("api.endpoint") {
		config.Endpoint = v.GetString("api.endpoint")
	}

	if v.IsSet("api.timeout") {
		dur, err := time.ParseDuration(v.GetString("api.timeout"))
		if err != nil {
			return errs.Wrap(errs.Configuration, err, "invalid api.timeout setting")
		}
		config.Timeout = dur
	}
	return nil
}

// ResolveEndpoint returns the explicit endpoint if set and the endpoint of
// the configured channel otherwise.
func (c Config) ResolveEndpoint() (string, error) {
	if c.Endpoint != "" {
		return c.Endpoint, nil
	}
	if endpoint, ok := c.Channels[c.Channel]; ok && endpoint != "" {
		return endpoint, nil
	}
	return "", errs.New(errs.Configuration, "no endpoint configured for channel %q", c.Channel)
}

// Validate checks the settings required to submit an experiment.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return errs.New(errs.Configuration, "no API key configured (set api.key or %s)", envAPIKey)
	}
	if _, err := c.ResolveEndpoint(); err != nil {
		return err
	}
	if c.ExperimentsDir == "" {
		return errs.New(errs.Configuration, "no experiments directory configured")
	}
	if len(c.ReportTypes) == 0 {
		return errs.New(errs.Configuration, "no report types configured")
	}
	for _, t := range c.ReportTypes {
		if !reportTypes[t] {
			return errs.New(errs.Configuration, "unknown report type %q", t)
		}
	}
	return nil
}
