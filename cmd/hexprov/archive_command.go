package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/hexprov/hexprov/internal/archive"
	"github.com/hexprov/hexprov/internal/trace"
)

const (
	defaultArchiveListLimit = 20
	maxArchiveListLimit     = 200
)

func runArchive(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printArchiveUsage(errOut)
		return 2
	}

	switch args[0] {
	case "list":
		return runArchiveList(args[1:], out, errOut)
	case "show":
		return runArchiveShow(args[1:], out, errOut)
	case "save":
		return runArchiveSave(args[1:], out, errOut)
	case "delete":
		return runArchiveDelete(args[1:], out, errOut)
	default:
		printArchiveUsage(errOut)
		return 2
	}
}

func printArchiveUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  hexprov archive list [--config path/to/hexprov.yaml] [--limit N]")
	fmt.Fprintln(out, "  hexprov archive show [--config path/to/hexprov.yaml] RECORD_ID")
	fmt.Fprintln(out, "  hexprov archive save [--config path/to/hexprov.yaml] [--label TEXT] <trace.json>")
	fmt.Fprintln(out, "  hexprov archive delete [--config path/to/hexprov.yaml] RECORD_ID")
}

func openConfiguredStore(configPath string, errOut io.Writer) (archive.Store, int) {
	cfg, stage, err := loadAndValidateConfig(configPath)
	if err != nil {
		if stage == configStageLoad {
			fmt.Fprintf(errOut, "failed to load config: %v\n", err)
		} else {
			fmt.Fprintf(errOut, "config is invalid: %v\n", err)
		}
		return nil, 1
	}
	store, err := openArchiveStore(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "failed to open archive store: %v\n", err)
		return nil, 1
	}
	return store, 0
}

func runArchiveList(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("archive list", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	limit := flagSet.Int("limit", defaultArchiveListLimit, "Record count (1-200)")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "archive list does not accept positional arguments")
		return 2
	}
	if *limit <= 0 || *limit > maxArchiveListLimit {
		fmt.Fprintf(errOut, "limit must be between 1 and %d\n", maxArchiveListLimit)
		return 2
	}

	store, code := openConfiguredStore(*configPath, errOut)
	if store == nil {
		return code
	}
	defer closeStoreWithWarning(store, errOut)

	records, err := store.ListTraces(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(errOut, "failed to list archive: %v\n", err)
		return 1
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "(archive is empty)")
		return 0
	}

	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tLABEL\tBYTES\tREADS\tSEEKS\tSPANS\tTRUNCATED\tUPDATED_AT")
	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%d\t%d\t%d\t%t\t%s\n",
			rec.ID,
			rec.Label,
			rec.ByteCount,
			rec.ReadCount,
			rec.SeekCount,
			rec.SpanCount,
			rec.Truncated,
			rec.UpdatedAt.UTC().Format(time.RFC3339),
		)
	}
	if err := writer.Flush(); err != nil {
		fmt.Fprintf(errOut, "failed to write listing: %v\n", err)
		return 1
	}
	return 0
}

func runArchiveShow(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("archive show", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 1 {
		fmt.Fprintln(errOut, "archive show requires exactly one record ID")
		return 2
	}

	store, code := openConfiguredStore(*configPath, errOut)
	if store == nil {
		return code
	}
	defer closeStoreWithWarning(store, errOut)

	rec, err := store.GetTrace(context.Background(), flagSet.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "failed to load record: %v\n", err)
		return 1
	}

	// The stored document is already the wire format; emit it untouched so
	// the output round-trips through other tools.
	if _, err := out.Write(rec.Document); err != nil {
		fmt.Fprintf(errOut, "failed to write document: %v\n", err)
		return 1
	}
	return 0
}

func runArchiveSave(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("archive save", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	label := flagSet.String("label", "", "Human-readable record label")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 1 {
		fmt.Fprintln(errOut, "archive save requires exactly one trace document path")
		return 2
	}

	t, err := trace.Load(flagSet.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "failed to load trace: %v\n", err)
		return 1
	}

	store, code := openConfiguredStore(*configPath, errOut)
	if store == nil {
		return code
	}
	defer closeStoreWithWarning(store, errOut)

	rec, err := archive.NewRecord(uuid.NewString(), *label, t, false)
	if err != nil {
		fmt.Fprintf(errOut, "failed to build record: %v\n", err)
		return 1
	}
	if err := store.SaveTrace(context.Background(), rec); err != nil {
		fmt.Fprintf(errOut, "failed to save trace: %v\n", err)
		return 1
	}

	fmt.Fprintln(out, rec.ID)
	return 0
}

func runArchiveDelete(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("archive delete", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 1 {
		fmt.Fprintln(errOut, "archive delete requires exactly one record ID")
		return 2
	}

	store, code := openConfiguredStore(*configPath, errOut)
	if store == nil {
		return code
	}
	defer closeStoreWithWarning(store, errOut)

	id := flagSet.Arg(0)
	if err := store.DeleteTrace(context.Background(), id); err != nil {
		fmt.Fprintf(errOut, "failed to delete record: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "deleted %s\n", id)
	return 0
}
