package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "dedupe":
		return runDedupe(args[1:])
	case "sweep":
		return runSweep(args[1:])
	case "recompute":
		return runRecompute(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "collate CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  collate <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health     Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  ingest     Validate and store item payloads")
	fmt.Fprintln(os.Stderr, "  dedupe     Evaluate pending items into clusters")
	fmt.Fprintln(os.Stderr, "  sweep      Reconcile stranded items and process the backlog")
	fmt.Fprintln(os.Stderr, "  recompute  Clean orphans and re-pick cluster representatives")
	fmt.Fprintln(os.Stderr, "  serve      Start the API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"collate <command> -h\" for command-specific flags.")
}
