package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/hexprov/hexprov/internal/archive"
	"github.com/hexprov/hexprov/internal/config"
	"github.com/hexprov/hexprov/internal/trace"
)

const (
	configStageLoad     = "load"
	configStageValidate = "validate"
)

// normalizeTextJSONFormat validates command output format flags with shared semantics.
func normalizeTextJSONFormat(command, rawValue, defaultValue string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawValue))
	if normalized == "" {
		normalized = strings.TrimSpace(defaultValue)
	}
	switch normalized {
	case "text", "json":
		return normalized, nil
	default:
		return "", fmt.Errorf("invalid %s format %q: expected text or json", strings.TrimSpace(command), rawValue)
	}
}

// loadAndValidateConfig resolves config and reports which stage failed.
func loadAndValidateConfig(configPath string) (config.Config, string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, configStageLoad, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, configStageValidate, err
	}
	return cfg, "", nil
}

func runConfigValidate(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("config validate", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "config validate does not accept positional arguments")
		return 2
	}

	_, _, err := loadAndValidateConfig(*configPath)
	if err != nil {
		fmt.Fprintf(errOut, "config is invalid: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "config is valid: %s\n", *configPath)
	return 0
}

func openArchiveStore(cfg config.Config) (archive.Store, error) {
	if strings.TrimSpace(cfg.Storage.Driver) == "postgres" {
		return archive.NewPostgresStore(cfg.Storage.DSN)
	}
	return archive.NewSQLiteStore(cfg.Storage.Path)
}

func closeStoreWithWarning(store archive.Store, errOut io.Writer) {
	if err := store.Close(); err != nil {
		fmt.Fprintf(errOut, "warning: failed to close archive store: %v\n", err)
	}
}

// loadTraceSource resolves a trace from either a document path or an archive
// record ID, returning a display name for the source. Exactly one of path and
// recordID must be set; the caller enforces that before calling.
func loadTraceSource(cfg config.Config, path, recordID string) (*trace.Trace, string, error) {
	if recordID != "" {
		store, err := openArchiveStore(cfg)
		if err != nil {
			return nil, "", fmt.Errorf("open archive store: %w", err)
		}
		defer func() { _ = store.Close() }()

		rec, err := store.GetTrace(context.Background(), recordID)
		if err != nil {
			return nil, "", fmt.Errorf("load archive record %q: %w", recordID, err)
		}
		t, err := rec.Trace()
		if err != nil {
			return nil, "", err
		}
		return t, "archive:" + recordID, nil
	}

	t, err := trace.Load(path)
	if err != nil {
		return nil, "", err
	}
	return t, path, nil
}
