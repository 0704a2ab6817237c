package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hexprov/hexprov/internal/index"
	"github.com/hexprov/hexprov/internal/trace"
)

const (
	defaultReportFormat = "text"
	defaultReportTop    = 10
	maxReportTop        = 200
	reportSchemaVersion = "trace-report.v1"
)

type reportDocument struct {
	SchemaVersion string            `json:"schema_version"`
	GeneratedAt   time.Time         `json:"generated_at"`
	Source        string            `json:"source"`
	Summary       reportSummaryInfo `json:"summary"`
	Spans         []reportSpanInfo  `json:"spans"`
	Regions       []reportRegion    `json:"regions"`
	Seeks         []reportSeekInfo  `json:"seeks"`
}

type reportSummaryInfo struct {
	ByteCount       int     `json:"byte_count"`
	StartIndex      int     `json:"start_index"`
	ReadCount       int     `json:"read_count"`
	SeekCount       int     `json:"seek_count"`
	SpanCount       int     `json:"span_count"`
	CoveredBytes    int     `json:"covered_bytes"`
	CoverageRatio   float64 `json:"coverage_ratio"`
	DeepestPath     string  `json:"deepest_path,omitempty"`
	DeepestPathSize int     `json:"deepest_path_depth,omitempty"`
}

type reportSpanInfo struct {
	Path  string `json:"path"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Bytes int    `json:"bytes"`
}

type reportRegion struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Path  string `json:"path"`
}

type reportSeekInfo struct {
	From int    `json:"from"`
	To   int    `json:"to"`
	Path string `json:"path"`
}

func runReport(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("report", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	format := flagSet.String("format", defaultReportFormat, "Output format: text or json")
	recordID := flagSet.String("id", "", "Load the trace from the archive by record ID")
	top := flagSet.Int("top", defaultReportTop, "Row count per section (1-200)")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}

	path := ""
	switch {
	case flagSet.NArg() == 1 && *recordID == "":
		path = flagSet.Arg(0)
	case flagSet.NArg() == 0 && *recordID != "":
	default:
		fmt.Fprintln(errOut, "report requires exactly one trace source: a document path or --id")
		return 2
	}

	normalizedFormat, err := normalizeTextJSONFormat("report", *format, defaultReportFormat)
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 2
	}
	if *top <= 0 || *top > maxReportTop {
		fmt.Fprintf(errOut, "top must be between 1 and %d\n", maxReportTop)
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

	t, source, err := loadTraceSource(cfg, path, *recordID)
	if err != nil {
		fmt.Fprintf(errOut, "failed to load trace: %v\n", err)
		return 1
	}

	report, err := buildReport(t, source, *top)
	if err != nil {
		fmt.Fprintf(errOut, "failed to build report: %v\n", err)
		return 1
	}

	if err := writeReport(out, normalizedFormat, report); err != nil {
		fmt.Fprintf(errOut, "failed to write report: %v\n", err)
		return 1
	}
	return 0
}

func buildReport(t *trace.Trace, source string, top int) (reportDocument, error) {
	idx, err := index.Build(t)
	if err != nil {
		return reportDocument{}, err
	}

	reads, seeks, spans := t.CountActions()

	covered := 0
	high := 0
	deepestPath := ""
	deepestDepth := 0
	regions := make([]reportRegion, 0, len(idx.Entries()))
	for _, e := range idx.Entries() {
		start, end := e.Interval.Start, e.Interval.End
		if start < high {
			start = high
		}
		if end > high {
			covered += end - start
			high = end
		}
		if len(e.Path) > deepestDepth {
			deepestDepth = len(e.Path)
			deepestPath = strings.Join(e.Path, "/")
		}
		regions = append(regions, reportRegion{
			Start: e.Interval.Start,
			End:   e.Interval.End,
			Path:  strings.Join(e.Path, "/"),
		})
	}

	spanRows := collectSpanRows(t, idx)
	sort.Slice(spanRows, func(i, j int) bool {
		if spanRows[i].Bytes != spanRows[j].Bytes {
			return spanRows[i].Bytes > spanRows[j].Bytes
		}
		return spanRows[i].Path < spanRows[j].Path
	})
	if len(spanRows) > top {
		spanRows = spanRows[:top]
	}
	if len(regions) > top {
		regions = regions[:top]
	}

	seekRows := make([]reportSeekInfo, 0, len(idx.Seeks()))
	for _, s := range idx.Seeks() {
		seekRows = append(seekRows, reportSeekInfo{
			From: s.From,
			To:   s.To,
			Path: strings.Join(s.Path, "/"),
		})
	}
	if len(seekRows) > top {
		seekRows = seekRows[:top]
	}

	ratio := 0.0
	if len(t.Data) > 0 {
		ratio = float64(covered) / float64(len(t.Data))
	}

	return reportDocument{
		SchemaVersion: reportSchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Source:        source,
		Summary: reportSummaryInfo{
			ByteCount:       len(t.Data),
			StartIndex:      t.StartIndex,
			ReadCount:       reads,
			SeekCount:       seeks,
			SpanCount:       spans,
			CoveredBytes:    covered,
			CoverageRatio:   ratio,
			DeepestPath:     deepestPath,
			DeepestPathSize: deepestDepth,
		},
		Spans:   spanRows,
		Regions: regions,
		Seeks:   seekRows,
	}, nil
}

// collectSpanRows lists every span that covered at least one byte, with its
// full path and covered interval.
func collectSpanRows(t *trace.Trace, idx *index.Index) []reportSpanInfo {
	var rows []reportSpanInfo
	var walk func(act *trace.Action, prefix []string)
	walk = func(act *trace.Action, prefix []string) {
		if act.Kind != trace.KindSpan {
			return
		}
		path := append(append([]string(nil), prefix...), act.Name)
		if iv, ok := idx.SpanInterval(act); ok {
			rows = append(rows, reportSpanInfo{
				Path:  strings.Join(path, "/"),
				Start: iv.Start,
				End:   iv.End,
				Bytes: iv.Len(),
			})
		}
		for _, child := range act.Actions {
			walk(child, path)
		}
	}
	if t.Root != nil {
		walk(t.Root, nil)
	}
	return rows
}

func writeReport(out io.Writer, format string, report reportDocument) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	default:
		return writeReportText(out, report)
	}
}

func writeReportText(out io.Writer, report reportDocument) error {
	fmt.Fprintln(out, "Trace Report")

	metadataWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(metadataWriter, "Schema version\t%s\n", report.SchemaVersion)
	fmt.Fprintf(metadataWriter, "Generated at\t%s\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(metadataWriter, "Source\t%s\n", report.Source)
	fmt.Fprintf(metadataWriter, "Buffer bytes\t%d\n", report.Summary.ByteCount)
	fmt.Fprintf(metadataWriter, "Start index\t%d\n", report.Summary.StartIndex)
	fmt.Fprintf(metadataWriter, "Reads\t%d\n", report.Summary.ReadCount)
	fmt.Fprintf(metadataWriter, "Seeks\t%d\n", report.Summary.SeekCount)
	fmt.Fprintf(metadataWriter, "Spans\t%d\n", report.Summary.SpanCount)
	fmt.Fprintf(metadataWriter, "Covered bytes\t%d (%.1f%%)\n", report.Summary.CoveredBytes, report.Summary.CoverageRatio*100)
	if report.Summary.DeepestPath != "" {
		fmt.Fprintf(metadataWriter, "Deepest path\t%s\n", report.Summary.DeepestPath)
	}
	if err := metadataWriter.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nSpans by bytes covered")
	if len(report.Spans) == 0 {
		fmt.Fprintln(out, "(no spans covered any bytes)")
	} else {
		spanWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(spanWriter, "PATH\tSTART\tEND\tBYTES")
		for _, row := range report.Spans {
			fmt.Fprintf(spanWriter, "%s\t%d\t%d\t%d\n", row.Path, row.Start, row.End, row.Bytes)
		}
		if err := spanWriter.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\nRegions")
	if len(report.Regions) == 0 {
		fmt.Fprintln(out, "(no bytes consumed)")
	} else {
		regionWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(regionWriter, "START\tEND\tPATH")
		for _, row := range report.Regions {
			fmt.Fprintf(regionWriter, "%d\t%d\t%s\n", row.Start, row.End, row.Path)
		}
		if err := regionWriter.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\nSeeks")
	if len(report.Seeks) == 0 {
		fmt.Fprintln(out, "(no seeks)")
		return nil
	}
	seekWriter := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(seekWriter, "FROM\tTO\tPATH")
	for _, row := range report.Seeks {
		fmt.Fprintf(seekWriter, "%d\t%d\t%s\n", row.From, row.To, row.Path)
	}
	return seekWriter.Flush()
}
