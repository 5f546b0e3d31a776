package registry

import (
	"errors"
	"fmt"
)

// Sentinel errors. Lookups wrap ErrModelNotFound and ErrColumnNotFound in
// typed errors carrying the requested names.
var (
	ErrModelNotFound     = errors.New("model not found")
	ErrColumnNotFound    = errors.New("column not found")
	ErrRegistryNotLoaded = errors.New("registry not loaded")
	ErrAlreadyLoaded     = errors.New("registry already loaded")
)

// ModelNotFoundError reports a model absent from the registry.
type ModelNotFoundError struct {
	Model string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q not found in registry", e.Model)
}

func (e *ModelNotFoundError) Unwrap() error { return ErrModelNotFound }

// ColumnNotFoundError reports a column absent from an existing model.
type ColumnNotFoundError struct {
	Model  string
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found in model %q", e.Column, e.Model)
}

func (e *ColumnNotFoundError) Unwrap() error { return ErrColumnNotFound }
