package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/hexprov/hexprov/internal/observability"
	"github.com/hexprov/hexprov/internal/view"
)

func runView(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("view", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	recordID := flagSet.String("id", "", "Load the trace from the archive by record ID")
	columns := flagSet.Int("columns", 0, "Hex pane width in bytes (default from config)")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}

	path := ""
	switch {
	case flagSet.NArg() == 1 && *recordID == "":
		path = flagSet.Arg(0)
	case flagSet.NArg() == 0 && *recordID != "":
	default:
		fmt.Fprintln(errOut, "view requires exactly one trace source: a document path or --id")
		return 2
	}

	cfg, stage, err := loadAndValidateConfig(*configPath)
	if err != nil {
		if stage == configStageLoad {
			fmt.Fprintf(errOut, "failed to load config: %v\n", err)
		} else {
			fmt.Fprintf(errOut, "config is invalid: %v\n", err)
		}
		return 1
	}

	// The viewer owns stdout, so the logger writes to stderr.
	logger, err := observability.NewLogger(cfg.Logging, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "config is invalid: %v\n", err)
		return 1
	}

	t, source, err := loadTraceSource(cfg, path, *recordID)
	if err != nil {
		fmt.Fprintf(errOut, "failed to load trace: %v\n", err)
		return 1
	}
	logger.Debug("trace loaded", "source", source, "bytes", len(t.Data))

	hexColumns := cfg.Viewer.HexColumns
	if *columns > 0 {
		hexColumns = *columns
	}
	if err := view.Run(t, view.Options{HexColumns: hexColumns}); err != nil {
		logger.Error("visualizer failed", "error", err)
		return 1
	}
	return 0
}
