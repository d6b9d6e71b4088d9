package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Device DeviceConfig `mapstructure:"device"`
	MQTT   MQTTConfig   `mapstructure:"mqtt"`
	API    APIConfig    `mapstructure:"api"`
	Log    LogConfig    `mapstructure:"log"`
}

type DeviceConfig struct {
	Instance    int           `mapstructure:"instance"`
	Address     int           `mapstructure:"address"` // -1 = discover
	Interval    time.Duration `mapstructure:"interval"`
	Retries     int           `mapstructure:"retries"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	BaudRate    uint          `mapstructure:"baud_rate"`
	DataBits    uint          `mapstructure:"data_bits"`
	Parity      string        `mapstructure:"parity"`
	StopBits    uint          `mapstructure:"stop_bits"`
}

type MQTTConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Broker        string `mapstructure:"broker"`
	ClientID      string `mapstructure:"client_id"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	TopicPrefix   string `mapstructure:"topic_prefix"`
	PortalID      string `mapstructure:"portal_id"`
	Retain        bool   `mapstructure:"retain"`
	HomeAssistant bool   `mapstructure:"homeassistant"`
}

type APIConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EnvPrefix prefixes every environment override, e.g. RENOGY_DCC_DEVICE_RETRIES.
const EnvPrefix = "RENOGY_DCC"

// Load reads configPath, or config.yaml from the working directory or
// /etc/renogy-dcc when configPath is empty. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/renogy-dcc")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("device.instance", 0)
	v.SetDefault("device.address", -1)
	v.SetDefault("device.interval", "5s")
	v.SetDefault("device.retries", 5)
	v.SetDefault("device.read_timeout", "500ms")
	v.SetDefault("device.baud_rate", 9600)
	v.SetDefault("device.data_bits", 8)
	v.SetDefault("device.parity", "N")
	v.SetDefault("device.stop_bits", 1)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "N")
	v.SetDefault("mqtt.portal_id", "renogy")
	v.SetDefault("mqtt.retain", true)
	v.SetDefault("mqtt.homeassistant", false)
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8046)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	d := cfg.Device

	if d.Interval <= 0 {
		return fmt.Errorf("device.interval must be > 0, got %s", d.Interval)
	}
	if d.ReadTimeout <= 0 {
		return fmt.Errorf("device.read_timeout must be > 0, got %s", d.ReadTimeout)
	}
	if d.Retries < 0 {
		return fmt.Errorf("device.retries must be >= 0, got %d", d.Retries)
	}
	if d.Address < -1 || d.Address > 254 {
		return fmt.Errorf("device.address must be -1 (discover) or 0..254, got %d", d.Address)
	}
	switch strings.ToUpper(d.Parity) {
	case "N", "NONE", "E", "EVEN", "O", "ODD":
	default:
		return fmt.Errorf("device.parity %q is not one of N, E, O", d.Parity)
	}
	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required when mqtt is enabled")
	}
	if cfg.API.Enabled && (cfg.API.Port <= 0 || cfg.API.Port > 65535) {
		return fmt.Errorf("api.port out of range: %d", cfg.API.Port)
	}

	return nil
}

// Discover reports whether the device address has to be discovered.
func (d DeviceConfig) Discover() bool {
	return d.Address < 0
}
