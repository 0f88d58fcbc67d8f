// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads reader, logging, issuance and metrics settings from
// a YAML/TOML/JSON file with PN533_ environment overrides.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Pipe kinds.
const (
	PipeUSB    = "usb"
	PipeSerial = "serial"
)

// EnvConfig names the variable consulted when Load gets an empty path.
const EnvConfig = "PN533_CONFIG"

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// DeviceConfig selects and tunes the reader connection.
type DeviceConfig struct {
	// Pipe is "usb" or "serial".
	Pipe string `mapstructure:"pipe"`
	// Path is "bus/address" for usb or a port name for serial. Empty picks
	// the first matching reader.
	Path      string        `mapstructure:"path"`
	IOTimeout time.Duration `mapstructure:"ioTimeout"`
	TraceSize int           `mapstructure:"traceSize"`
}

// LumberjackConfig configures the rotating log file.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
	// SessionDir enables the pn533 wire session log when set.
	SessionDir string `mapstructure:"sessionDir"`
}

// IssuanceConfig carries the values written to blank cards.
type IssuanceConfig struct {
	// MasterKey is 24 bytes of hex. Prefer PN533_ISSUANCE_MASTERKEY over
	// putting it in a file.
	MasterKey  string `mapstructure:"masterKey"`
	DFD        int    `mapstructure:"dfd"`
	KeyVersion int    `mapstructure:"keyVersion"`
}

// MasterKeyBytes decodes MasterKey.
func (c IssuanceConfig) MasterKeyBytes() ([]byte, error) {
	if c.MasterKey == "" {
		return nil, fmt.Errorf("%w: issuance.masterKey is not set", ErrInvalidConfig)
	}
	key, err := hex.DecodeString(strings.ReplaceAll(c.MasterKey, " ", ""))
	if err != nil {
		return nil, fmt.Errorf("%w: issuance.masterKey: %w", ErrInvalidConfig, err)
	}
	if len(key) != 24 {
		return nil, fmt.Errorf("%w: issuance.masterKey is %d bytes, want 24", ErrInvalidConfig, len(key))
	}
	return key, nil
}

type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Path   string `mapstructure:"path"`
}

// Config is the top level configuration.
type Config struct {
	Device   DeviceConfig   `mapstructure:"device"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Issuance IssuanceConfig `mapstructure:"issuance"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// Load reads path, or $PN533_CONFIG, or ./pn533.{yaml,toml,json}. A missing
// default file is not an error; defaults and environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("pn533")
	}

	setDefaults(v)

	v.SetEnvPrefix("PN533")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.pipe", PipeUSB)
	v.SetDefault("device.path", "")
	v.SetDefault("device.ioTimeout", "500ms")
	v.SetDefault("device.traceSize", 32)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 28)
	v.SetDefault("logging.file.compress", false)
	v.SetDefault("logging.sessionDir", "")

	v.SetDefault("issuance.masterKey", "")
	v.SetDefault("issuance.dfd", 0)
	v.SetDefault("issuance.keyVersion", 1)

	v.SetDefault("metrics.enable", false)
	v.SetDefault("metrics.addr", ":9533")
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks ranges. The master key is only checked when present,
// since most commands do not need it.
func (c *Config) Validate() error {
	switch c.Device.Pipe {
	case PipeUSB, PipeSerial:
	default:
		return fmt.Errorf("%w: device.pipe %q, want %q or %q", ErrInvalidConfig, c.Device.Pipe, PipeUSB, PipeSerial)
	}
	if c.Device.IOTimeout <= 0 {
		return fmt.Errorf("%w: device.ioTimeout %v", ErrInvalidConfig, c.Device.IOTimeout)
	}
	if c.Device.TraceSize < 0 {
		return fmt.Errorf("%w: device.traceSize %d", ErrInvalidConfig, c.Device.TraceSize)
	}
	if c.Issuance.DFD < 0 || c.Issuance.DFD > 0xFFFF {
		return fmt.Errorf("%w: issuance.dfd %d out of range", ErrInvalidConfig, c.Issuance.DFD)
	}
	if c.Issuance.KeyVersion < 0 || c.Issuance.KeyVersion > 0xFFFF {
		return fmt.Errorf("%w: issuance.keyVersion %d out of range", ErrInvalidConfig, c.Issuance.KeyVersion)
	}
	if c.Issuance.MasterKey != "" {
		if _, err := c.Issuance.MasterKeyBytes(); err != nil {
			return err
		}
	}
	return nil
}
