// Package config provides configuration loading and management for scherzo.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/jilei-hao/scherzo/pkg/isosurface"
	"github.com/jilei-hao/scherzo/pkg/logging"
)

// Config represents the application configuration loaded from YAML or TOML
type Config struct {
	// Generation parameters handed to the isosurface generator for every label
	Generation isosurface.Options `yaml:"generation" toml:"generation"`

	// Processing parameters
	Processing struct {
		// NumWorkers specifies how many label surfaces are extracted in parallel
		NumWorkers int `yaml:"numWorkers" toml:"num_workers"`

		// CacheSizeMB is the size of the in-session mesh cache; 0 disables it
		CacheSizeMB int `yaml:"cacheSizeMB" toml:"cache_size_mb"`

		// ReleaseSource drops the input voxel buffer once it has been decomposed
		ReleaseSource bool `yaml:"releaseSource" toml:"release_source"`
	} `yaml:"processing" toml:"processing"`

	// Logging parameters
	Logging struct {
		logging.Config `yaml:",inline"`

		// Verbose enables debug output
		Verbose bool `yaml:"verbose" toml:"verbose"`
	} `yaml:"logging" toml:"logging"`

	// Export parameters
	Export struct {
		// Driver selects the blob store: fs, memory or s3
		Driver string `yaml:"driver" toml:"driver"`

		// Root is the base directory of the fs driver
		Root string `yaml:"root" toml:"root"`

		// Bucket, Region, Endpoint and PathStyle configure the s3 driver.
		// Endpoint and PathStyle are only needed for S3-compatible services.
		Bucket    string `yaml:"bucket" toml:"bucket"`
		Region    string `yaml:"region" toml:"region"`
		Endpoint  string `yaml:"endpoint" toml:"endpoint"`
		PathStyle bool   `yaml:"pathStyle" toml:"path_style"`

		// Prefix is prepended to every exported object key
		Prefix string `yaml:"prefix" toml:"prefix"`

		// Format is the STL encoding: binary or ascii
		Format string `yaml:"format" toml:"format"`
	} `yaml:"export" toml:"export"`

	// Colors configures the label colour table
	Colors struct {
		// Preset is itksnap or distinct
		Preset string `yaml:"preset" toml:"preset"`

		// Overrides maps label values to colour strings such as "#ff8000" or "rgb(255,128,0)"
		Overrides map[string]string `yaml:"overrides" toml:"overrides"`
	} `yaml:"colors" toml:"colors"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Generation = isosurface.DefaultOptions()

	cfg.Processing.NumWorkers = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.CacheSizeMB = 64
	cfg.Processing.ReleaseSource = true

	cfg.Logging.MaxSize = 100
	cfg.Logging.MaxAge = 7

	cfg.Export.Driver = "fs"
	cfg.Export.Root = "output"
	cfg.Export.Region = "us-east-1"
	cfg.Export.Format = "binary"

	cfg.Colors.Preset = "itksnap"

	return cfg
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads configuration from a YAML or TOML file.
// If the file doesn't exist, it returns the default configuration.
// Keys missing from the file keep their default values.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, errors.Wrap(err, "error parsing config file")
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values a run cannot start with.
func (c *Config) Validate() error {
	if err := c.Generation.Validate(); err != nil {
		return err
	}
	switch c.Export.Driver {
	case "fs", "memory", "s3":
	default:
		return errors.Errorf("unknown export driver %q", c.Export.Driver)
	}
	if c.Export.Driver == "s3" && c.Export.Bucket == "" {
		return errors.New("export driver s3 needs a bucket")
	}
	switch c.Export.Format {
	case "binary", "ascii":
	default:
		return errors.Errorf("unknown export format %q", c.Export.Format)
	}
	switch c.Colors.Preset {
	case "itksnap", "distinct":
	default:
		return errors.Errorf("unknown colour preset %q", c.Colors.Preset)
	}
	if c.Processing.CacheSizeMB < 0 {
		return errors.Errorf("negative cache size %d", c.Processing.CacheSizeMB)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file, or a TOML file when the
// path ends in .toml
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	var data []byte
	if isTOML(configPath) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return errors.Wrap(err, "error marshaling config")
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return errors.Wrap(err, "error marshaling config")
		}
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
