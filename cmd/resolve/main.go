// Command resolve refreshes the persisted reporters file: any handle given
// on the command line is added, and every entry without a DID is resolved
// via com.atproto.identity.resolveHandle. Run it once whenever the reporter
// list changes so the server never resolves at request time.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/hoophead/bsky-stream/internal/bluesky"
	"github.com/hoophead/bsky-stream/internal/domain"
	"github.com/hoophead/bsky-stream/internal/reporters"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		path    string
		appview string
	)
	flag.StringVar(&path, "reporters", "reporters.json", "path to the reporters JSON file")
	flag.StringVar(&appview, "appview", "", "AppView base URL (defaults to the public AppView)")
	flag.Parse()

	store := reporters.NewStore(path)
	list, err := store.Load()
	if err != nil {
		return err
	}

	// Positional args are handles to add before resolving.
	for _, handle := range flag.Args() {
		if !containsHandle(list, handle) {
			list = append(list, domain.Reporter{Handle: handle})
		}
	}

	if len(list) == 0 {
		return fmt.Errorf("no reporters in %s and none given on the command line", path)
	}

	ctx := context.Background()
	client := bluesky.NewClient(appview, os.Getenv("BLUESKY_TOKEN"))

	resolved := 0
	for i, r := range list {
		if r.DID != "" {
			continue
		}
		did, err := client.ResolveHandle(ctx, r.Handle)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to resolve %s: %v\n", r.Handle, err)
			continue
		}
		fmt.Printf("%s -> %s\n", r.Handle, did)
		list[i].DID = did
		resolved++
	}

	if err := store.Save(list); err != nil {
		return err
	}

	fmt.Printf("resolved %d handle(s), wrote %d reporter(s) to %s\n", resolved, len(list), path)
	return nil
}

func containsHandle(list []domain.Reporter, handle string) bool {
	for _, r := range list {
		if r.Handle == handle {
			return true
		}
	}
	return false
}
