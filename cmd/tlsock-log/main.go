// Command tlsock-log views and analyzes tlsock protocol log files.
//
// Log files are written by a host with server.protocol_log set, for example
// tlsock-echo.
//
// Usage:
//
//	tlsock-log <command> [flags] <file.cbor>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View only TLS error drains
//	tlsock-log view -category error echo.cbor
//
//	# Keep the events of one connection
//	tlsock-log filter -conn-id 6f1c2d3e-... -o conn.cbor echo.cbor
//
//	# Show per-connection byte counts
//	tlsock-log stats echo.cbor
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tlsock/tlsock-go/cmd/tlsock-log/commands"
)

const usage = `tlsock-log - tlsock protocol log analyzer

Usage:
  tlsock-log <command> [flags] <file.cbor>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "tlsock-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// pathArg returns the single log file argument or exits with usage.
func pathArg(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tlsock-log view - View log file in human-readable format

Usage:
  tlsock-log view [flags] <file.cbor>

Flags:
`)
		fs.PrintDefaults()
	}

	layer := fs.String("layer", "", "Filter by layer (socket, tls, stream)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (io, state, error)")
	fatal := fs.Bool("fatal", false, "Show only fatal error drains")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := pathArg(fs)

	filter := commands.ViewFilter{FatalOnly: *fatal}

	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}

	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}

	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tlsock-log export - Export log file to JSON or CSV format

Usage:
  tlsock-log export [flags] <file.cbor>

Flags:
`)
		fs.PrintDefaults()
	}

	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if err := commands.RunExport(pathArg(fs), *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tlsock-log filter - Filter log file and write to new file

Usage:
  tlsock-log filter [flags] <file.cbor>

Flags:
`)
		fs.PrintDefaults()
	}

	output := fs.String("o", "", "Output file (required)")
	connID := fs.String("conn-id", "", "Filter by connection ID")
	protocol := fs.String("protocol", "", "Filter by listener protocol")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")
	layer := fs.String("layer", "", "Filter by layer (socket, tls, stream)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (io, state, error)")
	fatal := fs.Bool("fatal", false, "Keep only fatal error drains")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := pathArg(fs)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, commands.FilterOptions{
		Output:    *output,
		ConnID:    *connID,
		Protocol:  *protocol,
		TimeStart: *timeStart,
		TimeEnd:   *timeEnd,
		Layer:     *layer,
		Direction: *direction,
		Category:  *category,
		FatalOnly: *fatal,
	})
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tlsock-log stats - Show statistics about the log file

Usage:
  tlsock-log stats <file.cbor>

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if err := commands.RunStats(pathArg(fs), os.Stdout); err != nil {
		fail(err)
	}
}
