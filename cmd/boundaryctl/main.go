// Command boundaryctl is a thin CLI wrapper around the egress boundary's
// core library packages: redact a request, verify an audit log's hash
// chain, or query episodic memory, all against a repo root on disk.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing: it never calls os.Exit itself.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "redact":
		return runRedactCmd(args[2:], stdout, stderr)
	case "verify-audit":
		return runVerifyAuditCmd(args[2:], stdout, stderr)
	case "episode-query":
		return runEpisodeQueryCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "boundaryctl - egress boundary control CLI")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  boundaryctl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  redact          Run an internal request through the redaction engine")
	fmt.Fprintln(w, "  verify-audit    Verify an audit log's hash chain")
	fmt.Fprintln(w, "  episode-query   Query the episodic memory index")
	fmt.Fprintln(w, "  help            Show this help")
}
