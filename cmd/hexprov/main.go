package main

import (
	"fmt"
	"io"
	"os"

	"github.com/hexprov/hexprov/internal/version"
)

const defaultConfigPath = "hexprov.yaml"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Println(version.String())
		return 0
	case "view":
		return runView(args[1:], os.Stdout, os.Stderr)
	case "report":
		return runReport(args[1:], os.Stdout, os.Stderr)
	case "archive":
		return runArchive(args[1:], os.Stdout, os.Stderr)
	case "config":
		return runConfig(args[1:], os.Stdout, os.Stderr)
	default:
		printUsage(os.Stderr)
		return 2
	}
}

func runConfig(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printConfigUsage(errOut)
		return 2
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], out, errOut)
	default:
		printConfigUsage(errOut)
		return 2
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  hexprov version")
	fmt.Fprintln(out, "  hexprov view [--config path/to/hexprov.yaml] [--columns N] (<trace.json> | --id RECORD_ID)")
	fmt.Fprintln(out, "  hexprov report [--config path/to/hexprov.yaml] [--format text|json] [--top N] (<trace.json> | --id RECORD_ID)")
	fmt.Fprintln(out, "  hexprov archive <list|show|save|delete> [flags]")
	fmt.Fprintln(out, "  hexprov config validate [--config path/to/hexprov.yaml]")
}

func printConfigUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  hexprov config validate [--config path/to/hexprov.yaml]")
}
