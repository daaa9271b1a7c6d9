// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for chunkmux.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrCapacityExceeded = fmt.Errorf("capacity exceeded")
	ErrEmptyBuffer      = fmt.Errorf("buffer is empty")
	ErrMalformedFraming = fmt.Errorf("malformed datagram framing")
	ErrShortBuffer      = fmt.Errorf("destination buffer too small")
	ErrForeignArena     = fmt.Errorf("buffers do not share a chunk arena")
	ErrInvalidArgument  = fmt.Errorf("invalid argument")
	ErrAlreadyExists    = fmt.Errorf("resource already exists")
	ErrNotFound         = fmt.Errorf("resource not found")
	ErrTransportClosed  = fmt.Errorf("transport is closed")
	ErrArenaClosed      = fmt.Errorf("chunk arena is closed")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeCapacityExceeded
	ErrCodeEmptyBuffer
	ErrCodeMalformedFraming
	ErrCodeShortBuffer
	ErrCodeForeignArena
	ErrCodeAlreadyExists
	ErrCodeNotFound
	ErrCodeArenaClosed
	ErrCodeTransportClosed
	ErrCodeInternal
)

var codeSentinels = map[ErrorCode]error{
	ErrCodeInvalidArgument:  ErrInvalidArgument,
	ErrCodeCapacityExceeded: ErrCapacityExceeded,
	ErrCodeEmptyBuffer:      ErrEmptyBuffer,
	ErrCodeMalformedFraming: ErrMalformedFraming,
	ErrCodeShortBuffer:      ErrShortBuffer,
	ErrCodeForeignArena:     ErrForeignArena,
	ErrCodeAlreadyExists:    ErrAlreadyExists,
	ErrCodeNotFound:         ErrNotFound,
	ErrCodeArenaClosed:      ErrArenaClosed,
	ErrCodeTransportClosed:  ErrTransportClosed,
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap exposes the sentinel matching Code so errors.Is(err, ErrCapacityExceeded) works.
func (e *Error) Unwrap() error {
	return codeSentinels[e.Code]
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf returns the ErrorCode carried by err, ErrCodeInternal for foreign errors
// and ErrCodeOK for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	for code, sentinel := range codeSentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ErrCodeInternal
}
