package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/eddielth/pt100-south/bus"
	"github.com/eddielth/pt100-south/logger"
	"github.com/eddielth/pt100-south/plugin"
)

// EnvPrefix prefixes environment variable overrides, e.g. PT100_MQTT_BROKER
const EnvPrefix = "PT100"

// Config represents the service configuration
type Config struct {
	Plugin       map[string]interface{} `mapstructure:"plugin"`
	Bus          BusConfig              `mapstructure:"bus"`
	Poll         PollConfig             `mapstructure:"poll"`
	MQTT         MQTTConfig             `mapstructure:"mqtt"`
	Kafka        KafkaConfig            `mapstructure:"kafka"`
	API          APIConfig              `mapstructure:"api"`
	Transformers map[string]Transformer `mapstructure:"transformers"`
	Validator    ValidatorConfig        `mapstructure:"validator"`
	Storage      StorageConfig          `mapstructure:"storage"`
	Logger       LoggerConfig           `mapstructure:"logger"`
}

// BusConfig selects the probe bus
type BusConfig struct {
	Type string        `mapstructure:"type"`
	Sim  bus.SimConfig `mapstructure:"sim"`
}

// PollConfig bounds each poll call
type PollConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// MQTTConfig represents the MQTT connection configuration
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	Format      string `mapstructure:"format"`
	QoS         byte   `mapstructure:"qos"`
}

// KafkaConfig represents the Kafka sink configuration
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// APIConfig represents the HTTP API configuration
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Transformer represents a reading transform script
type Transformer struct {
	ScriptPath string `mapstructure:"script_path"`
	ScriptCode string `mapstructure:"script_code"`
}

// ValidatorConfig represents the reading range check
type ValidatorConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Field   string  `mapstructure:"field"`
	Min     float64 `mapstructure:"min"`
	Max     float64 `mapstructure:"max"`
}

// LoggerConfig represents the logging configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	Console    bool   `mapstructure:"console"`
}

// StorageConfig represents the storage configuration
type StorageConfig struct {
	File     FileStorageConfig     `mapstructure:"file"`
	Database DatabaseStorageConfig `mapstructure:"database"`
}

// FileStorageConfig represents the file storage configuration
type FileStorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DatabaseStorageConfig represents the database storage configuration
type DatabaseStorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Type    string `mapstructure:"type"`
	DSN     string `mapstructure:"dsn"`
}

// ConfigChangeCallback is called with the reloaded configuration after the file changes
type ConfigChangeCallback func(cfg *Config) error

func setDefaults(v *viper.Viper) {
	sim := bus.DefaultSimConfig()
	v.SetDefault("bus.type", "sim")
	v.SetDefault("bus.sim.max_pin", sim.MaxPin)
	v.SetDefault("bus.sim.base_temperature", sim.BaseTemperature)
	v.SetDefault("bus.sim.noise", sim.Noise)
	v.SetDefault("poll.timeout", 2*time.Second)
	v.SetDefault("mqtt.topic_prefix", "pt100")
	v.SetDefault("mqtt.format", "json")
	v.SetDefault("api.listen", ":8080")
	v.SetDefault("validator.field", "temperature")
	v.SetDefault("validator.min", -200.0)
	v.SetDefault("validator.max", 850.0)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.console", true)
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &cfg, nil
}

// LoadConfig loads the configuration file at configPath
func LoadConfig(configPath string) (*Config, error) {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read configuration %s: %w", configPath, err)
	}

	return decode(v)
}

// PluginConfiguration merges the plugin section over the plugin's default configuration.
// viper lowercases keys, so item names are matched case-insensitively.
func (c *Config) PluginConfiguration() plugin.Configuration {
	values := make(map[string]string, len(c.Plugin))
	for name, value := range c.Plugin {
		switch v := value.(type) {
		case float64:
			values[name] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			values[name] = fmt.Sprint(v)
		}
	}
	return plugin.DefaultConfig().WithValues(values)
}

// WatchConfig watches the configuration file and calls callback with each reloaded version
func WatchConfig(configPath string, callback ConfigChangeCallback) error {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return err
	}

	v := newViper(absPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration %s: %w", absPath, err)
	}

	// Debounce bursts of write events from editors
	var lastChangeTime time.Time
	debounceInterval := 2 * time.Second

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		now := time.Now()
		if now.Sub(lastChangeTime) < debounceInterval {
			return
		}
		lastChangeTime = now

		logger.Info("configuration file changed: %s", e.Name)

		newConfig, err := decode(v)
		if err != nil {
			logger.Error("failed to parse updated configuration: %v", err)
			return
		}

		if err := callback(newConfig); err != nil {
			logger.Error("failed to apply new configuration: %v", err)
			return
		}

		logger.Info("configuration updated and applied")
	})
	v.WatchConfig()

	return nil
}
