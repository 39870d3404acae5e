// Package cmd provides common initialization for the command-line
// entrypoints.
package cmd

import (
	"strings"

	"github.com/mailgrove/mailgrove/pkg/persistence"
	"github.com/mailgrove/mailgrove/pkg/persistence/memory"
)

// NewPersistence creates the storage collaborator from a database URL.
// Storage engines are external; the in-memory implementation backs local
// development and single-process deployments.
func NewPersistence(databaseURL string) persistence.Persistence {
	provider := parsePersistenceProvider(databaseURL)

	switch provider {
	default:
		return memory.NewPersistence()
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	return parts[0]
}
