package record

import (
	"errors"
	"fmt"

	"github.com/crewbase/crewbase/internal/schema"
)

// Error represents a failed record operation.
//
// Every failure mode of the record layer surfaces as one of these
// codes. None of them is retried automatically except transient store
// contention, which the transaction runner has already retried before
// it ever reaches a caller.
type Error struct {
	// Code identifies the failure category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Collection and ID identify the affected record where known.
	Collection string
	ID         string

	// Decl is set on dependents-exist failures: the has-many
	// declaration whose probe found a dependent.
	Decl *schema.HasManyDecl

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes record operation failures.
type ErrorCode string

const (
	// CodeValidation: a required field is missing, a value failed its
	// declared check, or an immutable key field was changed.
	CodeValidation ErrorCode = "VALIDATION"

	// CodeMissingKey: update or delete attempted without a resolved
	// identifier.
	CodeMissingKey ErrorCode = "MISSING_KEY"

	// CodeDuplicateKey: a fixed-key create collided with an existing
	// document.
	CodeDuplicateKey ErrorCode = "DUPLICATE_KEY"

	// CodeDependentsExist: delete blocked by the integrity guard.
	CodeDependentsExist ErrorCode = "DEPENDENTS_EXIST"

	// CodeAllocatorExhausted: the autonumber counter would overflow its
	// digit length.
	CodeAllocatorExhausted ErrorCode = "ALLOCATOR_EXHAUSTED"

	// CodeReconciliation: a fan-out step failed mid-transaction; the
	// parent write rolled back with it.
	CodeReconciliation ErrorCode = "RECONCILIATION"

	// CodeTransientStore: store-level contention or connectivity
	// failure that survived the bounded retry. The operation was not
	// applied.
	CodeTransientStore ErrorCode = "TRANSIENT_STORE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Collection != "" && e.ID != "":
		return fmt.Sprintf("%s: %s (%s/%s)", e.Code, e.Message, e.Collection, e.ID)
	case e.Collection != "":
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Collection)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Unwrap exposes the underlying cause to errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

func is(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsValidation reports whether the error is a validation failure.
func IsValidation(err error) bool { return is(err, CodeValidation) }

// IsMissingKey reports whether the error is a missing-identifier failure.
func IsMissingKey(err error) bool { return is(err, CodeMissingKey) }

// IsDuplicateKey reports whether the error is a fixed-key collision.
func IsDuplicateKey(err error) bool { return is(err, CodeDuplicateKey) }

// IsDependentsExist reports whether the error is a guarded delete.
func IsDependentsExist(err error) bool { return is(err, CodeDependentsExist) }

// IsAllocatorExhausted reports whether the error is counter overflow.
func IsAllocatorExhausted(err error) bool { return is(err, CodeAllocatorExhausted) }

// IsReconciliation reports whether the error is a fan-out failure.
func IsReconciliation(err error) bool { return is(err, CodeReconciliation) }

// IsTransientStore reports whether the error is store-level contention.
// Callers must treat it as "operation not applied".
func IsTransientStore(err error) bool { return is(err, CodeTransientStore) }

// DependentDecl returns the has-many declaration that blocked a delete,
// or nil when the error is not a dependents-exist failure.
func DependentDecl(err error) *schema.HasManyDecl {
	var re *Error
	if errors.As(err, &re) && re.Code == CodeDependentsExist {
		return re.Decl
	}
	return nil
}

func newValidationError(collection, msg string, cause error) *Error {
	return &Error{Code: CodeValidation, Message: msg, Collection: collection, Err: cause}
}

func newMissingKeyError(collection, op string) *Error {
	return &Error{
		Code:       CodeMissingKey,
		Message:    op + " requires a resolved identifier",
		Collection: collection,
	}
}

func newDuplicateKeyError(collection, id string) *Error {
	return &Error{
		Code:       CodeDuplicateKey,
		Message:    "document already exists",
		Collection: collection,
		ID:         id,
	}
}

func newDependentsExistError(collection, id string, decl schema.HasManyDecl) *Error {
	d := decl
	return &Error{
		Code:       CodeDependentsExist,
		Message:    fmt.Sprintf("still referenced by %s.%s", decl.Collection, decl.Field),
		Collection: collection,
		ID:         id,
		Decl:       &d,
	}
}

func newAllocatorExhaustedError(collection string, length int) *Error {
	return &Error{
		Code:       CodeAllocatorExhausted,
		Message:    fmt.Sprintf("autonumber counter exhausted %d digits", length),
		Collection: collection,
	}
}

func newReconciliationError(collection, id string, cause error) *Error {
	return &Error{
		Code:       CodeReconciliation,
		Message:    "embedded children could not be reconciled",
		Collection: collection,
		ID:         id,
		Err:        cause,
	}
}

func newTransientStoreError(collection string, cause error) *Error {
	return &Error{
		Code:       CodeTransientStore,
		Message:    "store transaction did not apply",
		Collection: collection,
		Err:        cause,
	}
}
