package index

import "errors"

var (
	// ErrDimensionMismatch is returned when an embedding batch's dimension
	// differs from the index's fixed dimension. This signals provider or
	// model skew and is fatal for the index instance.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrPersistence is returned when a snapshot save is aborted. The
	// prior on-disk snapshot remains valid; the operation is safe to retry.
	ErrPersistence = errors.New("persistence failure")

	// ErrCorruptIndex is returned when a loaded snapshot violates the
	// slot-count invariant. Partial state is never loaded; the caller must
	// rebuild from source documents.
	ErrCorruptIndex = errors.New("corrupt index snapshot")
)
