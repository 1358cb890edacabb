package checkpoint

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration.
var (
	// ErrInvalidMaxHistory indicates MaxHistory was below 1.
	ErrInvalidMaxHistory = errors.New("max history must be at least 1")

	// ErrEmptyPrefix indicates a checkpoint or recovery prefix was empty.
	ErrEmptyPrefix = errors.New("file prefix cannot be empty")
)

// Sentinel errors for save and load.
var (
	// ErrInvalidEpoch indicates a negative epoch or batch index.
	ErrInvalidEpoch = errors.New("epoch and batch index must be non-negative")

	// ErrNotFound indicates a checkpoint file doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrVersionMismatch indicates the checkpoint format version is incompatible.
	ErrVersionMismatch = errors.New("checkpoint version mismatch")

	// ErrCatalogClosed indicates the catalog has been closed.
	ErrCatalogClosed = errors.New("checkpoint catalog closed")
)

// CheckpointError wraps failures on the primary save path.
type CheckpointError struct {
	// Op is the operation that failed ("serialize", "save", "copy_best", "save_recovery").
	Op string
	// Path is the file being written.
	Path string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}
