// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrNoEmail            = errors.New("user has no email address")
	ErrItemNotFound       = errors.New("item not found")
	ErrNotificationAbsent = errors.New("scheduled notification not found")
	ErrInvalidTransition  = errors.New("invalid notification status transition")
	ErrClaimLost          = errors.New("notification claimed by another runner")
	ErrDispatchFailed     = errors.New("notification dispatch failed")
	ErrNoChannels         = errors.New("no notification channels enabled")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrDatabaseError      = errors.New("database error")
	ErrInputValidation    = errors.New("input validation failed")
)

// LookupError is returned when the owner of a scheduled notification
// cannot be resolved to a deliverable address.
type LookupError struct {
	UserID string
	Reason string
	Err    error
}

func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lookup error [%s]: %s: %v", e.UserID, e.Reason, e.Err)
	}
	return fmt.Sprintf("lookup error [%s]: %s", e.UserID, e.Reason)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// NewLookupError creates a new LookupError.
func NewLookupError(userID, reason string, err error) *LookupError {
	return &LookupError{
		UserID: userID,
		Reason: reason,
		Err:    err,
	}
}

// DispatchError represents a failure to hand a message to a channel.
type DispatchError struct {
	Channel string
	To      string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch error [%s] to %s: %v", e.Channel, e.To, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrDispatchFailed) match any DispatchError.
func (e *DispatchError) Is(target error) bool {
	return target == ErrDispatchFailed
}

// NewDispatchError creates a new DispatchError.
func NewDispatchError(channel, to string, err error) *DispatchError {
	return &DispatchError{
		Channel: channel,
		To:      to,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// StoreError represents a data store failure for a given collection.
type StoreError struct {
	Collection string
	Operation  string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error [%s] %s: %v", e.Collection, e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrDatabaseError) match any StoreError.
func (e *StoreError) Is(target error) bool {
	return target == ErrDatabaseError
}

// NewStoreError creates a new StoreError.
func NewStoreError(collection, operation string, err error) *StoreError {
	return &StoreError{
		Collection: collection,
		Operation:  operation,
		Err:        err,
	}
}

// TransitionError reports a rejected notification status change.
type TransitionError struct {
	UserID string
	ItemID string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("notification %s/%s: cannot move from %s to %s", e.UserID, e.ItemID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
