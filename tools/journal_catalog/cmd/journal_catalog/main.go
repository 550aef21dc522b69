package main

import (
	"flag"
	"fmt"
	"os"

	"driftpursuit/netplay/tools/journal_catalog"
)

func main() {
	root := flag.String("dir", ".", "directory containing journal bundles")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	entries, err := journalcatalog.List(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := journalcatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, entry := range entries {
		fmt.Printf("%s (schema %d)\n", entry.Dir, entry.Manifest.Version)
		fmt.Printf("  session: %s %q\n", entry.Manifest.SessionID, entry.Manifest.Label)
		fmt.Printf("  created: %s\n", entry.Manifest.CreatedAt)
		if entry.Summary != nil {
			fmt.Printf("  closed:  %s (%d events, %d fires)\n", entry.Summary.ClosedAt, entry.Summary.Events, entry.Summary.Fires)
		} else {
			fmt.Printf("  closed:  interrupted\n")
		}
	}
}
