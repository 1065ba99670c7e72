package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrDatasetNotFound indicates an unknown dataset name was requested
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrSchemaNotInitialized indicates a database is missing its schema
	ErrSchemaNotInitialized = errors.New("schema not initialized")

	// ErrConflict indicates a write collided with a concurrent writer
	ErrConflict = errors.New("write conflict")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInterrupted indicates an operation was canceled before completion
	ErrInterrupted = errors.New("interrupted")
)
