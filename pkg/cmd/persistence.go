// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/procwise/procwise/pkg/guestcache"
	"github.com/procwise/procwise/pkg/persistence"
	"github.com/procwise/procwise/pkg/persistence/gormstore"
	"github.com/procwise/procwise/pkg/persistence/memory"
)

// NewPersistence selects the storage backend from the database URL scheme:
// sqlite:// and mysql:// use the relational store, memory:// is for tests and
// local runs.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "sqlite", "mysql":
		p, err := gormstore.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to open persistence: %w", err))
		}

		return p
	case "memory":
		return memory.NewPersistence()
	default:
		panic("Unsupported persistence provider in database URL: " + databaseURL)
	}
}

// NewGuestCache returns the redis-backed guest link cache, or the no-op cache
// when no URL is configured.
func NewGuestCache(redisURL string, logger *slog.Logger) guestcache.Cache {
	if redisURL == "" {
		return guestcache.Nop{}
	}

	client, err := guestcache.NewClient(redisURL, logger)
	if err != nil {
		panic(fmt.Errorf("failed to connect guest cache: %w", err))
	}

	return client
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return provider
}
