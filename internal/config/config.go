package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Capture       CaptureConfig       `yaml:"capture"`
	Storage       StorageConfig       `yaml:"storage"`
	Viewer        ViewerConfig        `yaml:"viewer"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type CaptureConfig struct {
	// SkipFrames excludes the innermost tracer frames from every stack
	// sample before merging.
	SkipFrames int `yaml:"skip_frames"`
	// FlushQueueSize bounds the background snapshot-flush queue.
	FlushQueueSize int `yaml:"flush_queue_size"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type ViewerConfig struct {
	// HexColumns is the initial byte-per-row width of the hex pane.
	HexColumns int `yaml:"hex_columns"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

type ObservabilityConfig struct {
	OTel OTelConfig `yaml:"otel"`
}

type OTelConfig struct {
	Enabled                bool   `yaml:"enabled"`
	Endpoint               string `yaml:"endpoint"`
	Insecure               bool   `yaml:"insecure"`
	ServiceName            string `yaml:"service_name"`
	TracesEnabled          bool   `yaml:"traces_enabled"`
	MetricsEnabled         bool   `yaml:"metrics_enabled"`
	ExportTimeoutMS        int    `yaml:"export_timeout_ms"`
	MetricExportIntervalMS int    `yaml:"metric_export_interval_ms"`
}

const (
	defaultOTELEndpoint               = "localhost:4318"
	defaultOTELServiceName            = "hexprov"
	defaultOTELExportTimeoutMS        = 3000
	defaultOTELMetricExportIntervalMS = 10000
)

func Default() Config {
	return Config{
		Capture: CaptureConfig{
			SkipFrames:     0,
			FlushQueueSize: 16,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "hexprov.db",
		},
		Viewer: ViewerConfig{
			HexColumns: 16,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			OTel: OTelConfig{
				Enabled:                false,
				Endpoint:               defaultOTELEndpoint,
				ServiceName:            defaultOTELServiceName,
				TracesEnabled:          true,
				MetricsEnabled:         true,
				ExportTimeoutMS:        defaultOTELExportTimeoutMS,
				MetricExportIntervalMS: defaultOTELMetricExportIntervalMS,
			},
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			decoder := yaml.NewDecoder(bytes.NewReader(data))
			decoder.KnownFields(true)
			decodeErr := decoder.Decode(&cfg)
			if errors.Is(decodeErr, io.EOF) {
				decodeErr = nil
			}
			if decodeErr != nil {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, decodeErr)
			}
			// Reject multi-document configs to keep configuration unambiguous.
			var trailing any
			trailingErr := decoder.Decode(&trailing)
			if trailingErr != nil && !errors.Is(trailingErr, io.EOF) {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, trailingErr)
			}
			if trailing != nil {
				return Config{}, fmt.Errorf("parse yaml %q: multiple yaml documents are not supported", path)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("HEXPROV_SKIP_FRAMES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HEXPROV_SKIP_FRAMES %q: %w", v, err)
		}
		cfg.Capture.SkipFrames = n
	}
	if v := os.Getenv("HEXPROV_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("HEXPROV_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("HEXPROV_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("HEXPROV_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HEXPROV_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("HEXPROV_HEX_COLUMNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HEXPROV_HEX_COLUMNS %q: %w", v, err)
		}
		cfg.Viewer.HexColumns = n
	}
	if v := os.Getenv("HEXPROV_OTEL_ENDPOINT"); v != "" {
		cfg.Observability.OTel.Endpoint = v
		cfg.Observability.OTel.Enabled = true
	}
	return nil
}

// Validate checks configuration invariants required at runtime.
func Validate(cfg Config) error {
	if cfg.Capture.SkipFrames < 0 {
		return fmt.Errorf("capture.skip_frames must be non-negative (got %d)", cfg.Capture.SkipFrames)
	}
	if cfg.Capture.FlushQueueSize <= 0 {
		return fmt.Errorf("capture.flush_queue_size must be positive (got %d)", cfg.Capture.FlushQueueSize)
	}

	driver := strings.TrimSpace(cfg.Storage.Driver)
	switch driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return errors.New("storage.path is required when storage.driver=sqlite")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return errors.New("storage.dsn is required when storage.driver=postgres")
		}
	default:
		return fmt.Errorf("storage.driver must be one of sqlite, postgres (got %q)", cfg.Storage.Driver)
	}

	if cfg.Viewer.HexColumns < 1 || cfg.Viewer.HexColumns > 64 {
		return fmt.Errorf("viewer.hex_columns must be between 1 and 64 (got %d)", cfg.Viewer.HexColumns)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", cfg.Logging.Level)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be one of text, json (got %q)", cfg.Logging.Format)
	}

	if cfg.Observability.OTel.Enabled {
		if strings.TrimSpace(cfg.Observability.OTel.Endpoint) == "" {
			return errors.New("observability.otel.endpoint is required when otel is enabled")
		}
		if cfg.Observability.OTel.ExportTimeoutMS <= 0 {
			return fmt.Errorf("observability.otel.export_timeout_ms must be positive (got %d)", cfg.Observability.OTel.ExportTimeoutMS)
		}
		if cfg.Observability.OTel.MetricExportIntervalMS <= 0 {
			return fmt.Errorf("observability.otel.metric_export_interval_ms must be positive (got %d)", cfg.Observability.OTel.MetricExportIntervalMS)
		}
	}

	return nil
}
