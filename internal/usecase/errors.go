package usecase

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type ErrNotFound struct {
	ID      uuid.UUID
	Code    string
	Message string
}

func (e ErrNotFound) Error() string {
	return e.Message
}

// ErrValidation is a client-correctable policy violation, raised before any I/O.
type ErrValidation struct {
	Field   string
	Message string
}

func (e ErrValidation) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

type ErrConflict struct {
	Code    string
	Message string
}

func (e ErrConflict) Error() string {
	return e.Message
}

// ErrInvalidTransition signals client misuse: the asset is not in the status
// the operation requires. Callers should re-fetch the asset instead of retrying.
type ErrInvalidTransition struct {
	ID   uuid.UUID
	From AssetStatus
	To   AssetStatus
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("asset %s: invalid status transition %s -> %s", e.ID, e.From, e.To)
}

// ErrInfrastructure wraps transient failures of the object store, lock or
// database. It is never recorded on the asset.
type ErrInfrastructure struct {
	Op  string
	Err error
}

func (e ErrInfrastructure) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e ErrInfrastructure) Unwrap() error {
	return e.Err
}

func (e ErrInfrastructure) Retryable() bool {
	return true
}

// ErrProcessingFailed is returned alongside the FAILED asset snapshot when
// upload verification or format validation rejected the file.
type ErrProcessingFailed struct {
	ID      uuid.UUID
	Message string
}

func (e ErrProcessingFailed) Error() string {
	return e.Message
}

func infraErr(op string, err error) error {
	var ie ErrInfrastructure
	if errors.As(err, &ie) {
		return err
	}
	return ErrInfrastructure{Op: op, Err: err}
}

func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}
