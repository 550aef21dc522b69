package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"driftpursuit/netplay/internal/journal"
	"driftpursuit/netplay/tools/journal_inspect"
)

func main() {
	path := flag.String("path", "", "Path to a journal directory or manifest.json")
	timeline := flag.Bool("timeline", false, "print the merged timeline instead of the report")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path flag is required")
		os.Exit(1)
	}

	bundle, err := journalinspect.Open(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	enc := json.NewEncoder(os.Stdout)
	if *timeline {
		//1.- One JSON object per entry so the output can be streamed into jq.
		err := bundle.Replay(func(entry journal.Entry) error {
			return enc.Encode(entry)
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "encode error:", err)
			os.Exit(3)
		}
		return
	}

	report := journalinspect.Verify(bundle)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}
	if len(report.Mismatches) > 0 {
		os.Exit(4)
	}
}
