package certification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"agrocert/certification-backend/internal/ledger"
)

// Kind is a stable category for programmatic error handling.
// Callers branch on Kind, never on message text.
type Kind string

const (
	KindConfig              Kind = "FATAL_CONFIG"
	KindAuth                Kind = "FATAL_AUTH"
	KindValidation          Kind = "FATAL_VALIDATION"
	KindCapacityExceeded    Kind = "FATAL_CAPACITY_EXCEEDED"
	KindTransient           Kind = "TRANSIENT_LEDGER"
	KindPartialIssuance     Kind = "PARTIAL_ISSUANCE"
	KindNotFound            Kind = "NOT_FOUND"
	KindMalformedMetadata   Kind = "MALFORMED_METADATA"
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
)

// Error is a classified failure of one operation
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Retryable reports whether the same step may be retried once it is known not to have committed
func (e *Error) Retryable() bool {
	return e != nil && e.Kind == KindTransient
}

// OutcomeUnknown reports whether the step may have committed despite the error
func (e *Error) OutcomeUnknown() bool {
	return e != nil && errors.Is(e.Cause, ledger.ErrOutcomeUnknown)
}

// NewError builds a classified error
func NewError(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// PartialIssuanceError reports a pipeline that stopped after at least one step committed.
// Checkpoint holds everything already on the ledger so the caller can resume or discard.
type PartialIssuanceError struct {
	IssuanceID string
	Stage      Stage
	Checkpoint Checkpoint
	Cause      error
}

func (e *PartialIssuanceError) Error() string {
	return fmt.Sprintf("issuance %s stopped at %s after committing %s: %v",
		e.IssuanceID, e.Stage, e.Checkpoint.committed(), e.Cause)
}

func (e *PartialIssuanceError) Unwrap() error { return e.Cause }

// KindOf returns the outermost classification of err, or "" when err is unclassified
func KindOf(err error) Kind {
	var partial *PartialIssuanceError
	if errors.As(err, &partial) {
		return KindPartialIssuance
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is, or wraps, a failure of the given kind.
// A PartialIssuanceError matches both KindPartialIssuance and the kind of its cause.
func IsKind(err error, kind Kind) bool {
	if kind == KindPartialIssuance {
		var partial *PartialIssuanceError
		return errors.As(err, &partial)
	}
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ClassifySubmit maps a gateway write failure onto the taxonomy.
// A cancellation by the caller is returned as is.
func ClassifySubmit(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, ledger.ErrAuth):
		return NewError(KindAuth, op, "ledger rejected the signing identity", err)
	case errors.Is(err, ledger.ErrCapacityExceeded):
		return NewError(KindCapacityExceeded, op, "asset class supply cap reached", err)
	case errors.Is(err, ledger.ErrMetadataTooLarge), errors.Is(err, ledger.ErrInvalidTransaction):
		return NewError(KindValidation, op, "ledger rejected the transaction", err)
	case ledger.IsTransient(err):
		return NewError(KindTransient, op, "ledger did not confirm the transaction", err)
	default:
		return NewError(KindTransient, op, "ledger request failed", err)
	}
}

// ClassifyQuery maps a public-record read failure onto the taxonomy
func ClassifyQuery(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case ledger.IsNotFound(err):
		return NewError(KindNotFound, op, "record does not exist on the public ledger", err)
	default:
		return NewError(KindUpstreamUnavailable, op, "public record service unavailable", err)
	}
}
