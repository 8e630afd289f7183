/*
Copyright 2024 The CDB Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cdberrors defines the named, non-fatal error kinds that
// propagate to the user-visible boundary (table/column not found,
// type conversion failures, schema misuse, parser errors) and the
// Fatal wrapper for unrecoverable device, cache and allocator faults.
package cdberrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// NotFound reports a missing table, index or column by name.
type NotFound struct {
	Kind string // "table", "index" or "column"
	Name string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("cdb: %s %q not found", e.Kind, e.Name)
}

// NewNotFound builds a NotFound error for the given kind and name.
func NewNotFound(kind, name string) error {
	return &NotFound{Kind: kind, Name: name}
}

// TypeMismatch reports a literal that cannot be parsed or does not
// fit the target field's type and length.
type TypeMismatch struct {
	Literal string
	Reason  string
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("cdb: cannot convert %q: %s", e.Literal, e.Reason)
}

// NewTypeMismatch builds a TypeMismatch error carrying the offending literal.
func NewTypeMismatch(literal, reason string) error {
	return &TypeMismatch{Literal: literal, Reason: reason}
}

// SchemaMisuse reports an invalid combination of schema and request,
// such as a projection that omits a required primary column.
type SchemaMisuse struct {
	Reason string
}

func (e *SchemaMisuse) Error() string {
	return fmt.Sprintf("cdb: schema misuse: %s", e.Reason)
}

// NewSchemaMisuse builds a SchemaMisuse error.
func NewSchemaMisuse(reason string) error {
	return &SchemaMisuse{Reason: reason}
}

// ParseError reports a statement grammar error, including the
// dedicated "quit" signal used by the REPL loop.
type ParseError struct {
	Message string
	Quit    bool
}

func (e *ParseError) Error() string {
	if e.Quit {
		return "cdb: quit"
	}
	return fmt.Sprintf("cdb: parse error: %s", e.Message)
}

// NewParseError builds a syntax-error ParseError.
func NewParseError(message string) error {
	return &ParseError{Message: message}
}

// ErrQuit is the sentinel parse result signalling the REPL should exit.
var ErrQuit = &ParseError{Quit: true}

// IsQuit reports whether err is the REPL's quit signal.
func IsQuit(err error) bool {
	pe, ok := err.(*ParseError)
	return ok && pe.Quit
}

// Fatal wraps an unrecoverable device, cache or allocator fault. The
// caller is expected to abort the process once a Fatal error
// surfaces; it is never meant to be handled and retried.
type Fatal struct {
	cause error
}

func (e *Fatal) Error() string  { return "cdb: fatal: " + e.cause.Error() }
func (e *Fatal) Unwrap() error  { return e.cause }
func (e *Fatal) Cause() error   { return e.cause }

// WrapFatal wraps err, capturing a stack trace via pkg/errors, and
// marks it as a Fatal-class error. Returns nil if err is nil.
func WrapFatal(err error, context string) error {
	if err == nil {
		return nil
	}
	return &Fatal{cause: errors.Wrap(err, context)}
}

// IsFatal reports whether err (or something it wraps) is Fatal-class.
func IsFatal(err error) bool {
	var f *Fatal
	return errors.As(err, &f)
}
