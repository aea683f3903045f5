// Copyright 2024 The SMMU Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package smmuerr defines the error taxonomy of spec.md §7. Every public
// operation in pkg/smmu returns a *Error (or nil), never a bare errors.New
// or fmt.Errorf value, so that callers can switch on Kind.
package smmuerr

import "fmt"

// Kind is one of the taxonomy entries from spec.md §7.
type Kind int

const (
	// Identity
	InvalidStreamID Kind = iota
	InvalidContextID
	InvalidAddress
	InvalidPermissions
	InvalidSecurityState

	// Stream
	StreamNotConfigured
	StreamAlreadyConfigured
	StreamDisabled
	StreamNotFound
	StreamConfigurationError

	// Context
	ContextNotFound
	ContextAlreadyExists
	ContextLimitExceeded
	ContextPermissionDenied

	// Translation
	PageNotMapped
	PageAlreadyMapped
	TranslationTableError
	AddressSpaceExhausted
	PagePermissionViolation

	// Cache
	CacheOperationFailed
	CacheEntryNotFound
	CacheEvictionFailed
	InvalidCacheOperation

	// Fault/queue
	FaultHandlingError
	FaultRecordCorrupted
	FaultQueueFull
	UnknownFaultType
	CommandQueueFull
	EventQueueFull
	PRIQueueFull
	InvalidCommandType
	CommandProcessingFailed

	// System
	ResourceExhausted
	InternalError
	NotImplemented
	HardwareError
	ConfigurationError
	ParseError

	// Spec
	SpecViolation
	UnsupportedFeature
	InvalidConfiguration
	StateTransitionError
)

var kindNames = map[Kind]string{
	InvalidStreamID:         "InvalidStreamID",
	InvalidContextID:        "InvalidContextID",
	InvalidAddress:          "InvalidAddress",
	InvalidPermissions:      "InvalidPermissions",
	InvalidSecurityState:    "InvalidSecurityState",
	StreamNotConfigured:     "StreamNotConfigured",
	StreamAlreadyConfigured: "StreamAlreadyConfigured",
	StreamDisabled:          "StreamDisabled",
	StreamNotFound:          "StreamNotFound",
	StreamConfigurationError: "StreamConfigurationError",
	ContextNotFound:          "ContextNotFound",
	ContextAlreadyExists:     "ContextAlreadyExists",
	ContextLimitExceeded:     "ContextLimitExceeded",
	ContextPermissionDenied:  "ContextPermissionDenied",
	PageNotMapped:            "PageNotMapped",
	PageAlreadyMapped:        "PageAlreadyMapped",
	TranslationTableError:    "TranslationTableError",
	AddressSpaceExhausted:    "AddressSpaceExhausted",
	PagePermissionViolation:  "PagePermissionViolation",
	CacheOperationFailed:     "CacheOperationFailed",
	CacheEntryNotFound:       "CacheEntryNotFound",
	CacheEvictionFailed:      "CacheEvictionFailed",
	InvalidCacheOperation:    "InvalidCacheOperation",
	FaultHandlingError:       "FaultHandlingError",
	FaultRecordCorrupted:     "FaultRecordCorrupted",
	FaultQueueFull:           "FaultQueueFull",
	UnknownFaultType:         "UnknownFaultType",
	CommandQueueFull:         "CommandQueueFull",
	EventQueueFull:           "EventQueueFull",
	PRIQueueFull:             "PRIQueueFull",
	InvalidCommandType:       "InvalidCommandType",
	CommandProcessingFailed:  "CommandProcessingFailed",
	ResourceExhausted:        "ResourceExhausted",
	InternalError:            "InternalError",
	NotImplemented:           "NotImplemented",
	HardwareError:            "HardwareError",
	ConfigurationError:       "ConfigurationError",
	ParseError:               "ParseError",
	SpecViolation:            "SpecViolation",
	UnsupportedFeature:       "UnsupportedFeature",
	InvalidConfiguration:     "InvalidConfiguration",
	StateTransitionError:     "StateTransitionError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the single error type returned across the public API.
type Error struct {
	Kind   Kind
	Detail string
	// Cause wraps an underlying error, e.g. a stack-bearing invariant
	// violation rewrapped by pkg/smmu/internal/invariant.
	Cause error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error with no detail.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Newf builds an *Error with a formatted detail string.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that carries an underlying cause.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Detail: cause.Error(), Cause: cause}
}

// Is reports whether err is an *Error of the given kind, unwrapping as
// needed. Useful for callers that only care about the taxonomy, not message
// text.
func Is(err error, kind Kind) bool {
	var se *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			se = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return se != nil && se.Kind == kind
}
