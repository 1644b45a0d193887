package embedding

import (
	"context"
	"fmt"
)

// Embedder converts text into fixed-length float vectors.
type Embedder interface {
	// EmbedBatch embeds all texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single retrieval query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ServiceError wraps a remote embedding backend failure. Callers should treat
// it as transient and retryable.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("embedding service failed: %v", e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
