package store

import (
	"fmt"
	"strings"

	"github.com/minghe/poetry-annotator/internal/util"
)

// Sentinel errors shared with the util taxonomy
var (
	ErrSchemaNotInitialized = util.ErrSchemaNotInitialized
	ErrDatasetNotFound      = util.ErrDatasetNotFound
	ErrConflict             = util.ErrConflict
)

// StorageError wraps a driver error with the operation that produced it
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// wrapErr classifies a driver error. Busy/locked errors mean a concurrent
// writer collided with the single-writer connection and surface as
// ErrConflict; everything else becomes a StorageError.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") || strings.Contains(msg, "busy") {
		return &StorageError{Op: op, Err: fmt.Errorf("%w: %v", ErrConflict, err)}
	}
	return &StorageError{Op: op, Err: err}
}
