// Package config loads a device process's runtime configuration from
// environment variables (prefixed REACTORD_), an optional YAML file,
// and cobra-bound flags, using spf13/viper the way the example pack's
// config loaders do (steveyegge-beads' cmd/bd/config.go binds a
// per-command viper.New() against a YAML file and reads dotted keys
// like "sync.mode"; this Config flattens the equivalent dotted keys
// into a single struct loaded once at process start).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is one device process's full runtime configuration.
type Config struct {
	// Device identity
	DeviceName string `mapstructure:"device.name"`

	// Transport
	ListenAddr        string        `mapstructure:"transport.listen_addr"`
	ListenPort        int           `mapstructure:"transport.listen_port"`
	SenderMaxDialWait time.Duration `mapstructure:"transport.sender_max_dial_wait"`

	// Queues
	InboundQueueCapacity  int `mapstructure:"queues.inbound_capacity"`
	OutboundQueueCapacity int `mapstructure:"queues.outbound_capacity"`
	EventQueueCapacity    int `mapstructure:"queues.event_capacity"`

	// Address book
	AddressBookPath string `mapstructure:"addressbook.path"`
	AddressBookWatch bool  `mapstructure:"addressbook.watch"`

	// Observability
	MetricsAddr       string `mapstructure:"observability.metrics_addr"`
	TracingEndpoint   string `mapstructure:"observability.tracing_endpoint"`
	TracingEnabled    bool   `mapstructure:"observability.tracing_enabled"`

	// Logging
	LogLevel string `mapstructure:"log.level"`
}

// defaults mirrors DefaultCoreConfig's pattern of a single function
// populating every field with a sane standalone-process value.
func defaults() Config {
	return Config{
		DeviceName:            "device1",
		ListenAddr:            "0.0.0.0",
		ListenPort:            5557,
		SenderMaxDialWait:     10 * time.Second,
		InboundQueueCapacity:  4096,
		OutboundQueueCapacity: 4096,
		EventQueueCapacity:    4096,
		AddressBookPath:       "devices.yaml",
		AddressBookWatch:      true,
		MetricsAddr:           ":9090",
		TracingEndpoint:       "localhost:4317",
		TracingEnabled:        false,
		LogLevel:              "info",
	}
}

// Load builds a Config from, in ascending precedence: built-in
// defaults, an optional YAML file at configPath (skipped silently if
// absent), environment variables prefixed REACTORD_ (nested keys
// joined with "_", e.g. REACTORD_TRANSPORT_LISTEN_PORT), and flags
// already bound into fs.
func Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	d := defaults()
	setDefaults(v, d)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
			}
		}
	}

	v.SetEnvPrefix("REACTORD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("config: binding flags: %w", err)
		}
	}

	// The struct tags are whole dotted keys, while v nests settings by
	// key segment; a "::"-delimited viper holds each dotted key flat.
	flat := viper.NewWithOptions(viper.KeyDelimiter("::"))
	for _, k := range v.AllKeys() {
		flat.Set(k, v.Get(k))
	}
	cfg := defaults()
	if err := flat.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("device.name", d.DeviceName)
	v.SetDefault("transport.listen_addr", d.ListenAddr)
	v.SetDefault("transport.listen_port", d.ListenPort)
	v.SetDefault("transport.sender_max_dial_wait", d.SenderMaxDialWait)
	v.SetDefault("queues.inbound_capacity", d.InboundQueueCapacity)
	v.SetDefault("queues.outbound_capacity", d.OutboundQueueCapacity)
	v.SetDefault("queues.event_capacity", d.EventQueueCapacity)
	v.SetDefault("addressbook.path", d.AddressBookPath)
	v.SetDefault("addressbook.watch", d.AddressBookWatch)
	v.SetDefault("observability.metrics_addr", d.MetricsAddr)
	v.SetDefault("observability.tracing_endpoint", d.TracingEndpoint)
	v.SetDefault("observability.tracing_enabled", d.TracingEnabled)
	v.SetDefault("log.level", d.LogLevel)
}
