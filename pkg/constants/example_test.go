package constants_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentstation/taxamap/pkg/constants"
)

// Example demonstrates using the permission constants for the store directory
func Example() {
	dir, err := os.MkdirTemp("", "taxamap-example")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	storeDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(storeDir, constants.DirPermissions); err != nil {
		panic(err)
	}

	fmt.Printf("Created dir with %o permissions\n", constants.DirPermissions)
	fmt.Printf("Files are written with %o permissions\n", constants.FilePermissions)
	// Output:
	// Created dir with 755 permissions
	// Files are written with 644 permissions
}

// Example_sessionBudget demonstrates bounding a research session
func Example_sessionBudget() {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultSessionTimeout)
	defer cancel()

	deadline, _ := ctx.Deadline()
	fmt.Printf("Turns: %d\n", constants.DefaultMaxTurns)
	fmt.Printf("Budget: %s\n", constants.DefaultSessionTimeout)
	fmt.Printf("Has deadline: %t\n", !deadline.IsZero())
	// Output:
	// Turns: 8
	// Budget: 1m0s
	// Has deadline: true
}

// Example_retryBackoff shows the wait before each retry of an unavailable source
func Example_retryBackoff() {
	for attempt := range constants.MaxUnavailableRetries {
		wait := min(constants.RetryBackoff<<attempt, constants.MaxRetryBackoff)
		fmt.Printf("retry %d after %s\n", attempt+1, wait)
	}
	// Output:
	// retry 1 after 500ms
	// retry 2 after 1s
}

// Example_capabilityTimeouts lists the per-capability deadlines
func Example_capabilityTimeouts() {
	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"lookup_by_name", constants.LookupTimeout},
		{"get_occurrences", constants.OccurrencesTimeout},
		{"get_media", constants.MediaTimeout},
		{"get_literature", constants.LiteratureTimeout},
		{"get_morphology", constants.MorphologyTimeout},
	}
	for _, t := range timeouts {
		fmt.Printf("%-16s %s\n", t.name, t.d)
	}
	// Output:
	// lookup_by_name   10s
	// get_occurrences  20s
	// get_media        15s
	// get_literature   20s
	// get_morphology   20s
}
