package vecengine

import "context"

// ProgressFunc optionally reports embedding progress in [0, 1]. Embedders
// that can't estimate progress are free to never call it.
type ProgressFunc func(fraction float64)

// Embedder is the external collaborator that turns text into a vector. The
// manager treats it as an opaque black box: no retries, no fallback — a
// failure here always surfaces as ErrEmbedFailed to the caller that
// triggered it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ProgressEmbedder is an optional extension an Embedder implementation may
// also satisfy to report incremental progress while embedding long text.
type ProgressEmbedder interface {
	Embedder
	EmbedWithProgress(ctx context.Context, text string, progress ProgressFunc) ([]float64, error)
}
