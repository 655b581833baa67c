// Package errs provides machine-checkable domain errors.
package errs

import (
	stderrors "errors"
	"fmt"
	"strconv"
)

// Kind is the coarse error class callers branch on.
type Kind string

const (
	KindUnknown             Kind = "UNKNOWN"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindNotFound            Kind = "NOT_FOUND"
	KindInvalidInput        Kind = "INVALID_INPUT"
	KindInsufficientBalance Kind = "INSUFFICIENT_BALANCE"
	KindAlreadyClaimed      Kind = "ALREADY_CLAIMED"
	KindRequirementNotMet   Kind = "REQUIREMENT_NOT_MET"
	KindMetadataNotSet      Kind = "METADATA_NOT_SET"
	KindSourceNotConfigured Kind = "SOURCE_NOT_CONFIGURED"
	KindLimitTooHigh        Kind = "LIMIT_TOO_HIGH"
)

// Code is the specific, machine-readable error identity.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Authorization
	CodeUnauthorized Code = "UNAUTHORIZED"

	// Ledger
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeBalanceOverflow     Code = "BALANCE_OVERFLOW"
	CodeInvalidLevels       Code = "INVALID_LEVELS"
	CodeEmptyAddress        Code = "EMPTY_ADDRESS"

	// Response tree
	CodeEmptyChallenge          Code = "EMPTY_CHALLENGE"
	CodeEmptyResponse           Code = "EMPTY_RESPONSE"
	CodeChallengeNotFound       Code = "CHALLENGE_NOT_FOUND"
	CodeResponseNotFound        Code = "RESPONSE_NOT_FOUND"
	CodeParentNotFound          Code = "PARENT_NOT_FOUND"
	CodeParentChallengeMismatch Code = "PARENT_CHALLENGE_MISMATCH"
	CodeLimitTooHigh            Code = "LIMIT_TOO_HIGH"
	CodeInvalidLimit            Code = "INVALID_LIMIT"

	// Badges
	CodeUnknownBadge        Code = "UNKNOWN_BADGE"
	CodeAlreadyClaimed      Code = "BADGE_ALREADY_CLAIMED"
	CodeMetadataNotSet      Code = "BADGE_METADATA_NOT_SET"
	CodeSourceNotConfigured Code = "SOURCE_NOT_CONFIGURED"
	CodeRequirementNotMet   Code = "REQUIREMENT_NOT_MET"
	CodeUnknownSource       Code = "UNKNOWN_SOURCE"

	// Generic
	CodeNotFound     Code = "NOT_FOUND"
	CodeInvalidInput Code = "INVALID_INPUT"
)

// Kind maps a specific code to its taxonomy class.
func (c Code) Kind() Kind {
	switch c {
	case CodeUnauthorized:
		return KindUnauthorized
	case CodeNotFound, CodeChallengeNotFound, CodeResponseNotFound:
		return KindNotFound
	case CodeEmptyChallenge, CodeEmptyResponse, CodeParentNotFound, CodeParentChallengeMismatch,
		CodeBalanceOverflow, CodeInvalidLevels, CodeEmptyAddress, CodeInvalidLimit,
		CodeUnknownBadge, CodeUnknownSource, CodeInvalidInput:
		return KindInvalidInput
	case CodeInsufficientBalance:
		return KindInsufficientBalance
	case CodeAlreadyClaimed:
		return KindAlreadyClaimed
	case CodeRequirementNotMet:
		return KindRequirementNotMet
	case CodeMetadataNotSet:
		return KindMetadataNotSet
	case CodeSourceNotConfigured:
		return KindSourceNotConfigured
	case CodeLimitTooHigh:
		return KindLimitTooHigh
	default:
		return KindUnknown
	}
}

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the domain code from err, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// KindOf extracts the taxonomy class from err, or KindUnknown.
func KindOf(err error) Kind {
	return CodeOf(err).Kind()
}

// IsKind reports whether err belongs to kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// Fixed errors. Match them with errors.Is.
var (
	ErrUnauthorized            = New(CodeUnauthorized, "caller is not authorized")
	ErrInsufficientBalance     = New(CodeInsufficientBalance, "insufficient points")
	ErrBalanceOverflow         = New(CodeBalanceOverflow, "balance overflow")
	ErrEmptyAddress            = New(CodeEmptyAddress, "address required")
	ErrEmptyChallenge          = New(CodeEmptyChallenge, "challenge cannot be empty")
	ErrEmptyResponse           = New(CodeEmptyResponse, "response cannot be empty")
	ErrChallengeNotFound       = New(CodeChallengeNotFound, "challenge does not exist")
	ErrResponseNotFound        = New(CodeResponseNotFound, "response does not exist")
	ErrParentNotFound          = New(CodeParentNotFound, "parent response does not exist")
	ErrParentChallengeMismatch = New(CodeParentChallengeMismatch, "parent response does not belong to this challenge")
	ErrLimitTooHigh            = New(CodeLimitTooHigh, "limit too high")
	ErrInvalidLimit            = New(CodeInvalidLimit, "limit must not be negative")
	ErrUnknownBadge            = New(CodeUnknownBadge, "unknown badge type")
	ErrUnknownSource           = New(CodeUnknownSource, "unknown activity source")
	ErrAlreadyClaimed          = New(CodeAlreadyClaimed, "badge already claimed")
	ErrMetadataNotSet          = New(CodeMetadataNotSet, "badge metadata not set")
	ErrSourceNotConfigured     = New(CodeSourceNotConfigured, "activity source not configured")
	ErrRequirementNotMet       = New(CodeRequirementNotMet, "requirement not met")
)

func AlreadyClaimed(badge string) *Error {
	return WithMetadata(CodeAlreadyClaimed, fmt.Sprintf("badge already claimed: %s", badge),
		map[string]string{"badge": badge})
}

func MetadataNotSet(badge string) *Error {
	return WithMetadata(CodeMetadataNotSet, fmt.Sprintf("badge metadata not set: %s", badge),
		map[string]string{"badge": badge})
}

func SourceNotConfigured(source string) *Error {
	return WithMetadata(CodeSourceNotConfigured, fmt.Sprintf("activity source not configured: %s", source),
		map[string]string{"source": source})
}

func RequirementNotMet(badge string, required, actual uint64) *Error {
	return WithMetadata(CodeRequirementNotMet,
		fmt.Sprintf("requirement not met for %s: need %d, have %d", badge, required, actual),
		map[string]string{
			"badge":    badge,
			"required": strconv.FormatUint(required, 10),
			"actual":   strconv.FormatUint(actual, 10),
		})
}

// Invalid builds an ad hoc invalid-input error.
func Invalid(message string) *Error {
	return New(CodeInvalidInput, message)
}
