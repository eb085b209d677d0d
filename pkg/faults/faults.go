// Package faults defines the error taxonomy shared by the custody packages.
// Every error surfaced to callers carries a stable machine-checkable Kind and
// a human-readable remediation hint. Messages never contain secret material.
package faults

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-checkable error category.
type Kind string

const (
	// KindConfig marks missing or invalid configuration (master key, operator
	// credentials, endpoints). Not retryable without operator intervention.
	KindConfig Kind = "CONFIG"
	// KindInvalidFormat marks a malformed encrypted token.
	KindInvalidFormat Kind = "INVALID_FORMAT"
	// KindAuthFailed marks an authentication tag mismatch (tamper or wrong key).
	KindAuthFailed Kind = "AUTH_FAILED"
	// KindNoCredentials marks that no credential source could produce a signer.
	KindNoCredentials Kind = "NO_CREDENTIALS"
	// KindOffloadFailed marks that every payload backend failed.
	KindOffloadFailed Kind = "OFFLOAD_FAILED"
	// KindNetwork marks a failure to reach or construct a network client
	// before anything was submitted.
	KindNetwork Kind = "NETWORK"
	// KindLedgerRejected marks a transaction the ledger refused.
	KindLedgerRejected Kind = "LEDGER_REJECTED"
	// KindOutcomeUnknown marks an operation that may or may not have taken
	// effect (timeout after submission, ambiguous facilitator response).
	KindOutcomeUnknown Kind = "OUTCOME_UNKNOWN"
	// KindPaymentRejected marks a payment that failed verification or settlement.
	KindPaymentRejected Kind = "PAYMENT_REJECTED"
	// KindInvalidInput marks caller-supplied data that failed validation.
	KindInvalidInput Kind = "INVALID_INPUT"
	// KindNotFound marks a missing resource.
	KindNotFound Kind = "NOT_FOUND"
)

// Error is the concrete error type carried through the custody packages.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "vault.decrypt".
	Op string
	// Hint tells the operator or caller how to fix the condition.
	Hint string
	Err  error
}

// New builds an Error with the given kind, operation and hint wrapping err.
// err may be nil.
func New(kind Kind, op, hint string, err error) *Error {
	return &Error{Kind: kind, Op: op, Hint: hint, Err: err}
}

// Newf builds an Error whose cause is a formatted message.
func Newf(kind Kind, op, hint, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Hint: hint, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += " (hint: " + e.Hint + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind. It lets callers
// write errors.Is(err, faults.AuthFailed).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Sentinels usable with errors.Is.
var (
	Config          = &Error{Kind: KindConfig}
	InvalidFormat   = &Error{Kind: KindInvalidFormat}
	AuthFailed      = &Error{Kind: KindAuthFailed}
	NoCredentials   = &Error{Kind: KindNoCredentials}
	OffloadFailed   = &Error{Kind: KindOffloadFailed}
	Network         = &Error{Kind: KindNetwork}
	LedgerRejected  = &Error{Kind: KindLedgerRejected}
	OutcomeUnknown  = &Error{Kind: KindOutcomeUnknown}
	PaymentRejected = &Error{Kind: KindPaymentRejected}
	InvalidInput    = &Error{Kind: KindInvalidInput}
	NotFound        = &Error{Kind: KindNotFound}
)

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HintOf returns the remediation hint of the first *Error in err's chain that
// has one.
func HintOf(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.Hint != "" {
			return e.Hint
		}
		err = e.Err
	}
	return ""
}

// Retryable reports whether an error of kind k may succeed if retried
// unchanged. Only transient network failures qualify.
func Retryable(k Kind) bool {
	return k == KindNetwork
}
