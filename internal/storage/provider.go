// Package storage provides blob store implementations for archiving raw
// enrichment artifacts. The abstraction keeps the executor independent of a
// specific backend (Google Cloud Storage, the local filesystem, or nothing).
package storage

import (
	"context"
	"fmt"
)

// NoOpStore is a blob store that discards every artifact. It is useful for
// development or deployments where raw artifact archiving is disabled.
type NoOpStore struct{}

// PutObject for NoOpStore drops the data and returns a placeholder URI.
func (NoOpStore) PutObject(_ context.Context, path string, _ string, _ []byte) (string, error) {
	return fmt.Sprintf("noop://%s", path), nil
}
