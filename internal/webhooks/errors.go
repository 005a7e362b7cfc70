package webhooks

import (
	"errors"
	"fmt"

	pkgerrors "github.com/projectdash/dashboard-backend/pkg/errors"
)

// ErrorKind classifies a pipeline failure.
type ErrorKind string

const (
	KindAuthenticity   ErrorKind = "authenticity"
	KindDecode         ErrorKind = "decode"
	KindRoutingMiss    ErrorKind = "routing_miss"
	KindReconciliation ErrorKind = "reconciliation"
	KindSideEffect     ErrorKind = "side_effect"
)

// Rejection and failure reasons.
const (
	ReasonMissingHeader     = "missing_header"
	ReasonMalformedHeader   = "malformed_header"
	ReasonStaleTimestamp    = "stale_timestamp"
	ReasonSignatureMismatch = "signature_mismatch"

	ReasonMalformedBody = "malformed_body"
	ReasonMissingField  = "missing_field"
	ReasonKindMismatch  = "kind_mismatch"
	ReasonIDMismatch    = "id_mismatch"

	ReasonUnknownKind = "unknown_kind"

	ReasonLookupMiss = "lookup_miss"
	ReasonStorage    = "storage_failure"
	ReasonConflict   = "concurrent_update"
	ReasonDependency = "dependency_failure"
)

// Error is the typed failure returned by every pipeline stage.
type Error struct {
	Kind      ErrorKind
	Reason    string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) FailureKind() string { return string(e.Kind) }

func (e *Error) FailureReason() string { return e.Reason }

func (e *Error) FailureRetryable() bool { return e.Retryable }

func AuthenticityError(reason string, err error) *Error {
	return &Error{Kind: KindAuthenticity, Reason: reason, Err: err}
}

func DecodeError(reason string, err error) *Error {
	return &Error{Kind: KindDecode, Reason: reason, Err: err}
}

func RoutingMiss(provider, kind string) *Error {
	return &Error{
		Kind:   KindRoutingMiss,
		Reason: ReasonUnknownKind,
		Err:    fmt.Errorf("no handler for %s/%s", provider, kind),
	}
}

// LookupMiss reports that no account matches the event. Redelivery cannot fix it.
func LookupMiss(err error) *Error {
	return &Error{Kind: KindReconciliation, Reason: ReasonLookupMiss, Err: err}
}

// StorageFailure reports a transient store failure the sender should retry.
func StorageFailure(reason string, err error) *Error {
	return &Error{Kind: KindReconciliation, Reason: reason, Retryable: true, Err: err}
}

func SideEffectError(reason string, err error) *Error {
	return &Error{Kind: KindSideEffect, Reason: reason, Err: err}
}

// AsError extracts the typed pipeline error from err.
func AsError(err error) (*Error, bool) {
	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		return typed, true
	}
	return nil, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	typed, ok := AsError(err)
	return ok && typed.Kind == kind
}

// ToHTTPError maps a pipeline failure onto the coded errors written by the API layer.
func ToHTTPError(err error) *pkgerrors.Error {
	if err == nil {
		return nil
	}
	typed, ok := AsError(err)
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "webhook processing failed")
	}
	switch typed.Kind {
	case KindAuthenticity:
		return pkgerrors.Wrap(pkgerrors.CodeSignature, err, typed.Reason)
	case KindDecode:
		return pkgerrors.Wrap(pkgerrors.CodeDecode, err, "event could not be decoded").
			WithDetails(map[string]any{"reason": typed.Reason})
	case KindReconciliation:
		if typed.Retryable {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, typed.Reason)
		}
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "no account matches event")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, typed.Reason)
	}
}
