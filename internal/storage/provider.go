// Package storage defines the artifact store used for raw feed XML and
// lookup JSON snapshots. By using an interface, we decouple the collector
// from a specific backend and keep tests hermetic.
package storage

import "context"

// Provider writes raw artifacts and returns a URI for the stored object.
type Provider interface {
	Put(ctx context.Context, path string, data []byte) (string, error)
}

// NoOpProvider discards every write. Useful when running the crawler
// without artifact persistence.
type NoOpProvider struct{}

// Put for NoOpProvider does nothing and returns a placeholder URI.
func (NoOpProvider) Put(_ context.Context, path string, _ []byte) (string, error) {
	return "noop://" + path, nil
}
