// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package oaipmh

import (
	"errors"
	"fmt"
)

// ErrorCode identifies one protocol error condition, spelled exactly as it
// appears in the code attribute of an <error> element.
type ErrorCode string

// The closed set of wire error codes defined by OAI-PMH 2.0.
const (
	CodeBadArgument             ErrorCode = "badArgument"
	CodeBadVerb                 ErrorCode = "badVerb"
	CodeBadResumptionToken      ErrorCode = "badResumptionToken"
	CodeCannotDisseminateFormat ErrorCode = "cannotDisseminateFormat"
	CodeIDDoesNotExist          ErrorCode = "idDoesNotExist"
	CodeNoRecordsMatch          ErrorCode = "noRecordsMatch"
	CodeNoMetadataFormats       ErrorCode = "noMetadataFormats"
	CodeNoSetHierarchy          ErrorCode = "noSetHierarchy"
)

// CodeUnknown marks an error whose wire code is outside the closed set. The
// client produces it for unrecognized codes; the server never emits it.
const CodeUnknown ErrorCode = "unknown"

var wireCodes = map[ErrorCode]struct{}{
	CodeBadArgument:             {},
	CodeBadVerb:                 {},
	CodeBadResumptionToken:      {},
	CodeCannotDisseminateFormat: {},
	CodeIDDoesNotExist:          {},
	CodeNoRecordsMatch:          {},
	CodeNoMetadataFormats:       {},
	CodeNoSetHierarchy:          {},
}

// ParseErrorCode reports whether s is one of the closed wire codes and
// returns it typed.
func ParseErrorCode(s string) (ErrorCode, bool) {
	_, ok := wireCodes[ErrorCode(s)]
	return ErrorCode(s), ok
}

// Error is a protocol error from the closed OAI-PMH taxonomy. The server
// renders it as an <error> element, and the client reconstructs it from
// one. Backends return it to signal protocol conditions such as an unknown
// identifier or an empty result.
type Error struct {
	// Code is the wire error code.
	Code ErrorCode
	// Message is the human-readable error text, possibly empty.
	Message string
}

// NewError returns a protocol error with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any protocol error with the same code, so
// errors.Is(err, ErrNoRecordsMatch) holds regardless of message text.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Message-less comparison targets for [errors.Is], one per taxonomy code.
var (
	ErrBadArgument             = &Error{Code: CodeBadArgument}
	ErrBadVerb                 = &Error{Code: CodeBadVerb}
	ErrBadResumptionToken      = &Error{Code: CodeBadResumptionToken}
	ErrCannotDisseminateFormat = &Error{Code: CodeCannotDisseminateFormat}
	ErrIDDoesNotExist          = &Error{Code: CodeIDDoesNotExist}
	ErrNoRecordsMatch          = &Error{Code: CodeNoRecordsMatch}
	ErrNoMetadataFormats       = &Error{Code: CodeNoMetadataFormats}
	ErrNoSetHierarchy          = &Error{Code: CodeNoSetHierarchy}
	ErrUnknown                 = &Error{Code: CodeUnknown}
)

// AsError extracts the first protocol error in err's chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}

// CollectErrors returns every protocol error reachable in err's tree, in
// traversal order. Joined errors contribute all their protocol members.
func CollectErrors(err error) []*Error {
	var out []*Error
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if pe, ok := err.(*Error); ok {
			out = append(out, pe)
			return
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, e := range u.Unwrap() {
				walk(e)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

// DatestampError reports a value that is not a legal OAI-PMH datestamp.
type DatestampError struct {
	// Value is the rejected input.
	Value string
}

// Error implements error.
func (e *DatestampError) Error() string {
	return "illegal datestamp: " + e.Value
}

// XMLSyntaxError reports a response body that is not well-formed XML. Like
// [DatestampError] it is client-side only and never travels on the wire.
type XMLSyntaxError struct {
	// Err is the underlying parse error.
	Err error
}

// Error implements error.
func (e *XMLSyntaxError) Error() string {
	return "malformed XML response: " + e.Err.Error()
}

// Unwrap returns the parse error.
func (e *XMLSyntaxError) Unwrap() error { return e.Err }
