package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Overrides mirrors the optional YAML tunables file. Connection settings are
// environment-only and deliberately absent here.
type Overrides struct {
	Environment string             `yaml:"environment"`
	Ingest      *IngestSettings    `yaml:"ingest"`
	Worker      *WorkerSettings    `yaml:"worker"`
	Telemetry   *TelemetrySettings `yaml:"telemetry"`
}

// LoadOverrides applies the YAML overrides file at path on top of cfg. A
// missing file is not an error; the second return reports whether a file was
// loaded.
func LoadOverrides(cfg Settings, path string) (Settings, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, false, nil
		}
		return cfg, false, fmt.Errorf("read overrides file: %w", err)
	}

	var overrides Overrides
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return cfg, false, fmt.Errorf("parse overrides file %s: %w", path, err)
	}

	if overrides.Environment != "" {
		cfg.Environment = Environment(overrides.Environment)
	}
	if overrides.Ingest != nil {
		applyIngestOverrides(&cfg.Ingest, *overrides.Ingest)
	}
	if overrides.Worker != nil {
		applyWorkerOverrides(&cfg.Worker, *overrides.Worker)
	}
	if overrides.Telemetry != nil {
		cfg.Telemetry = *overrides.Telemetry
	}
	return cfg, true, nil
}

func applyIngestOverrides(dst *IngestSettings, src IngestSettings) {
	if src.Addr != "" {
		dst.Addr = src.Addr
	}
	if src.MaxBodyBytes > 0 {
		dst.MaxBodyBytes = src.MaxBodyBytes
	}
	if src.SourceRatePerSec > 0 {
		dst.SourceRatePerSec = src.SourceRatePerSec
	}
	if src.SourceBurst > 0 {
		dst.SourceBurst = src.SourceBurst
	}
	if src.AdminToken != "" {
		dst.AdminToken = src.AdminToken
	}
	if src.ReadHeaderTimeout > 0 {
		dst.ReadHeaderTimeout = src.ReadHeaderTimeout
	}
}

func applyWorkerOverrides(dst *WorkerSettings, src WorkerSettings) {
	if src.Prefetch > 0 {
		dst.Prefetch = src.Prefetch
	}
	if src.HealthAddr != "" {
		dst.HealthAddr = src.HealthAddr
	}
}
