package vectorstore

import "fmt"

// DimensionMismatchError reports an embedding whose length disagrees with the
// collection's established dimensionality, typically after swapping embedding
// models. It is not retryable: the knowledge base has to be re-vectorized.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: collection expects %d, got %d", e.Expected, e.Actual)
}

// UnavailableError wraps a transient storage failure. Callers may retry.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("vector collection unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
