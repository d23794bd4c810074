// Package config resolves the process configuration for the DAQ tooling:
// an optional YAML file provides defaults, environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/WashU-Astroparticle-Lab/daq/internal/platform/env"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// DataDir receives the binary run files, created on demand.
	DataDir string
	// CatalogTimeout bounds each catalogue call made during a save.
	CatalogTimeout time.Duration
	// ArchiveEnabled turns on object-store mirroring of run files.
	ArchiveEnabled bool
}

type fileConfig struct {
	DataDir        *string `yaml:"data_dir"`
	CatalogTimeout *string `yaml:"catalog_timeout"`
	ArchiveEnabled *bool   `yaml:"archive_enabled"`
}

// Load resolves the configuration. path may be empty; when set it names a
// YAML file whose values become the defaults under the DAQ_* environment.
func Load(path string) (Config, error) {
	var fc fileConfig
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	dataDirDef := "data"
	if fc.DataDir != nil {
		dataDirDef = *fc.DataDir
	}
	timeoutDef := 10 * time.Second
	if fc.CatalogTimeout != nil {
		d, err := time.ParseDuration(*fc.CatalogTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("config catalog_timeout: %w", err)
		}
		timeoutDef = d
	}
	archiveDef := false
	if fc.ArchiveEnabled != nil {
		archiveDef = *fc.ArchiveEnabled
	}

	timeout, err := env.Duration("DAQ_CATALOG_TIMEOUT", timeoutDef)
	if err != nil {
		return Config{}, err
	}
	archive, err := env.Bool("DAQ_ARCHIVE_ENABLED", archiveDef)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DataDir:        env.String("DAQ_DATA_DIR", dataDirDef),
		CatalogTimeout: timeout,
		ArchiveEnabled: archive,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data dir is required")
	}
	if c.CatalogTimeout <= 0 {
		return errors.New("catalog timeout must be positive")
	}
	return nil
}
