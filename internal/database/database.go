// Package database defines the interfaces for persisting collected
// podcast records. The interface decouples the pipeline from a specific
// database implementation, allowing a real Postgres in production and a
// mock or no-op provider in tests and local runs.
package database

import (
	"context"
	"time"
)

// Program is one normalized podcast record ready for persistence.
type Program struct {
	CollectionID string
	Title        string
	FeedURL      string
	ArtworkURL   string
	GenreIDs     []string
	EpisodeCount int
	Delisted     bool
	FetchedAt    time.Time
}

// Rank records one chart position of a collection within a genre for
// the current run.
type Rank struct {
	GenreID      string
	CollectionID string
	Position     int
}

// Provider is the persistence contract consumed by the collector. A
// database error is opaque to the pipeline and never retried here.
type Provider interface {
	// SaveProgram upserts one program record and returns the stored
	// record's generated identifier.
	SaveProgram(ctx context.Context, p Program) (string, error)

	// SaveRank records one chart position.
	SaveRank(ctx context.Context, r Rank) error

	// SaveTag upserts a tag by name and returns its identifier.
	SaveTag(ctx context.Context, name string) (string, error)

	// Close terminates the database connection and releases resources.
	Close() error
}

// NoOpProvider performs no operations. It is useful for tests and for
// running the collector without a database.
type NoOpProvider struct{}

// SaveProgram does nothing and returns a dummy id.
func (NoOpProvider) SaveProgram(_ context.Context, _ Program) (string, error) {
	return "noop-program-id", nil
}

// SaveRank does nothing.
func (NoOpProvider) SaveRank(_ context.Context, _ Rank) error { return nil }

// SaveTag does nothing and returns a dummy id.
func (NoOpProvider) SaveTag(_ context.Context, _ string) (string, error) {
	return "noop-tag-id", nil
}

// Close does nothing.
func (NoOpProvider) Close() error { return nil }
