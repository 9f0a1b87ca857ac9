// Package config implements the layered configuration named in the
// ambient stack: command-line flags override environment variables
// (USBCAPD_*) override the config file (~/.config/usbcapd/config.yaml)
// override built-in defaults, using spf13/viper to merge the layers and
// spf13/cobra (in cmd/usbcapd) to bind flags into it.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the daemon's resolved configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	TargetWidth  int `mapstructure:"target_width"`
	TargetHeight int `mapstructure:"target_height"`

	FramesPerBurst int `mapstructure:"frames_per_burst"`
	BufferInFrames int `mapstructure:"buffer_in_frames"`

	VendorID  uint16 `mapstructure:"vendor_id"`
	ProductID uint16 `mapstructure:"product_id"`
}

func defaults() Config {
	return Config{
		LogLevel:       "info",
		TargetWidth:    1920,
		TargetHeight:   1080,
		FramesPerBurst: 8,
		BufferInFrames: 4096,
	}
}

// Load builds a viper instance layered flags > env > file > defaults and
// unmarshals it into a Config. flags is the command's flag set, already
// parsed by cobra; configPath overrides the default
// ~/.config/usbcapd/config.yaml location when non-empty.
func Load(flags *pflag.FlagSet, configPath string) (*Config, error) {
	v := viper.New()

	def := defaults()
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("target_width", def.TargetWidth)
	v.SetDefault("target_height", def.TargetHeight)
	v.SetDefault("frames_per_burst", def.FramesPerBurst)
	v.SetDefault("buffer_in_frames", def.BufferInFrames)

	v.SetEnvPrefix("USBCAPD")
	v.AutomaticEnv()

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(home, ".config", "usbcapd", "config.yaml")
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return nil, fmt.Errorf("config: read %s: %w", configPath, err)
				}
			}
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
