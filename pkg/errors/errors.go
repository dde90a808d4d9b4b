package errors

import (
	stdErrors "errors"
	"fmt"
	"time"
)

// Kind buckets every failure from the remote store into a stable taxonomy.
// Callers branch on Kind, never on the underlying transport error.
type Kind string

const (
	KindAuth       Kind = "AUTH"
	KindNetwork    Kind = "NETWORK"
	KindValidation Kind = "VALIDATION"
	KindDatabase   Kind = "DATABASE"
	KindRateLimit  Kind = "RATE_LIMIT"
	KindNotFound   Kind = "NOT_FOUND"
	KindUnknown    Kind = "UNKNOWN"
)

// Severity grades how loudly a failure should be reported.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Metadata carries the per-kind policy: how severe the failure is, whether
// the caller can recover, whether a retry is worthwhile, and the message
// that is safe to show a user.
type Metadata struct {
	Severity     Severity
	Recoverable  bool
	Retryable    bool
	UserMessage  string
	RecoveryHint string
}

var metadataByKind = map[Kind]Metadata{
	KindAuth: {
		Severity:     SeverityHigh,
		Recoverable:  true,
		Retryable:    false,
		UserMessage:  "your session has expired",
		RecoveryHint: "sign in again",
	},
	KindNetwork: {
		Severity:     SeverityMedium,
		Recoverable:  true,
		Retryable:    true,
		UserMessage:  "we could not reach the server",
		RecoveryHint: "check your connection and try again",
	},
	KindValidation: {
		Severity:     SeverityLow,
		Recoverable:  true,
		Retryable:    false,
		UserMessage:  "the request was rejected",
		RecoveryHint: "correct the highlighted input",
	},
	KindDatabase: {
		Severity:     SeverityHigh,
		Recoverable:  false,
		Retryable:    false,
		UserMessage:  "the change could not be saved",
		RecoveryHint: "contact support if this keeps happening",
	},
	KindRateLimit: {
		Severity:     SeverityMedium,
		Recoverable:  true,
		Retryable:    true,
		UserMessage:  "too many requests",
		RecoveryHint: "wait a moment before retrying",
	},
	KindNotFound: {
		Severity:    SeverityMedium,
		Recoverable: false,
		Retryable:   false,
		UserMessage: "the requested record no longer exists",
	},
	KindUnknown: {
		Severity:    SeverityMedium,
		Recoverable: false,
		Retryable:   false,
		UserMessage: "something went wrong",
	},
}

// MetadataFor returns the policy for the given kind, falling back to the
// unknown bucket for kinds the table does not know about.
func MetadataFor(kind Kind) Metadata {
	if meta, ok := metadataByKind[kind]; ok {
		return meta
	}
	return metadataByKind[KindUnknown]
}

// Error is a classified failure. The message is technical and reserved for
// logs; the user-facing text comes from the kind's metadata unless
// overridden with WithUserMessage.
type Error struct {
	kind        Kind
	message     string
	userMessage string
	retryAfter  time.Duration
	details     any
	cause       error
}

func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

func Wrap(kind Kind, err error, message string) *Error {
	if err == nil {
		return New(kind, message)
	}
	return &Error{kind: kind, message: message, cause: err}
}

func (e *Error) Kind() Kind {
	if e == nil {
		return KindUnknown
	}
	return e.kind
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// UserMessage returns the text safe to surface to an end user.
func (e *Error) UserMessage() string {
	if e == nil {
		return MetadataFor(KindUnknown).UserMessage
	}
	if e.userMessage != "" {
		return e.userMessage
	}
	return MetadataFor(e.kind).UserMessage
}

func (e *Error) Severity() Severity {
	return MetadataFor(e.Kind()).Severity
}

func (e *Error) Recoverable() bool {
	return MetadataFor(e.Kind()).Recoverable
}

func (e *Error) Retryable() bool {
	return MetadataFor(e.Kind()).Retryable
}

func (e *Error) RecoveryHint() string {
	return MetadataFor(e.Kind()).RecoveryHint
}

// RetryAfter reports a server-supplied delay, zero when none was given.
func (e *Error) RetryAfter() time.Duration {
	if e == nil {
		return 0
	}
	return e.retryAfter
}

func (e *Error) WithUserMessage(msg string) *Error {
	if e == nil {
		return nil
	}
	e.userMessage = msg
	return e
}

func (e *Error) WithRetryAfter(d time.Duration) *Error {
	if e == nil {
		return nil
	}
	if d > 0 {
		e.retryAfter = d
	}
	return e
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts a classified error from an error chain, nil when absent.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// Classify guarantees the caller holds a classified error: already-typed
// errors pass through unchanged, anything else lands in the unknown bucket.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if typed := As(err); typed != nil {
		return typed
	}
	return Wrap(KindUnknown, err, err.Error())
}
