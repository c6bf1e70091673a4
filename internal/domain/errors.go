package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared across the pipeline. Callers match them with errors.Is
// after any number of fmt.Errorf("%w") wraps.
var (
	// ErrExtraction means a source document was unreadable or corrupt.
	// It fails the build for that document only.
	ErrExtraction = errors.New("docqa: document extraction failed")

	// ErrEmbedding means the embedding service was unreachable or rejected
	// input. Fatal to the current build or query.
	ErrEmbedding = errors.New("docqa: embedding failed")

	// ErrGeneration means the chat completion service failed. Scoped to a
	// single turn.
	ErrGeneration = errors.New("docqa: generation failed")

	// ErrInvalidStructuredOutput means a structured generation call returned
	// data that does not match the requested schema.
	ErrInvalidStructuredOutput = errors.New("docqa: structured output does not match schema")

	// ErrCollectionNotFound means the store path or collection does not
	// exist. An existing collection with zero entries is valid, not an error.
	ErrCollectionNotFound = errors.New("docqa: collection not found")

	// ErrDimensionMismatch means a vector's dimensionality disagrees with
	// the collection it targets.
	ErrDimensionMismatch = errors.New("docqa: vector dimension mismatch")
)

// OpError wraps an error with the name of the failing operation.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return fmt.Sprintf("docqa.%s: %v", e.Op, e.Err) }

func (e *OpError) Unwrap() error { return e.Err }

// WrapOp attaches operation context to err, passing nil through.
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}
