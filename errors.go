package vecengine

import (
	"errors"
	"fmt"
)

// Sentinel error kinds a Manager can return, mirroring internal/hnsw's own
// sentinel block one layer up at the document level.
var (
	// ErrNotFound is returned by Update/Delete/Get-adjacent calls against an
	// id the content store has never seen (or has already deleted).
	ErrNotFound = errors.New("vecengine: document not found")
	// ErrEmbedFailed wraps whatever error the injected Embedder returned.
	ErrEmbedFailed = errors.New("vecengine: embed failed")
)

func notFoundError(id string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, id)
}

func embedFailedError(err error) error {
	return fmt.Errorf("%w: %v", ErrEmbedFailed, err)
}
