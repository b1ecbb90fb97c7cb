// Package sdkerr defines the typed failures returned by every public operation
// of the vault SDK. Callers branch on the Kind, never on message text.
package sdkerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind uint8

const (
	// KindValidation is malformed input caught before any chain interaction.
	KindValidation Kind = iota + 1
	// KindConfiguration is an unsupported chain, contract or module combination.
	KindConfiguration
	// KindChainRead is a failed or malformed read from the chain.
	KindChainRead
	// KindStateConflict is a transition that is illegal in the current on-chain state.
	KindStateConflict
	// KindAuthorization is a caller lacking a required role or capability.
	KindAuthorization
	// KindInsufficientBalance is a native or fraction balance that is too low.
	KindInsufficientBalance
	// KindTransaction is a submission, estimation or mining failure.
	KindTransaction
	// KindTimeout is a receipt that did not arrive before the caller deadline.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindChainRead:
		return "chain read"
	case KindStateConflict:
		return "state conflict"
	case KindAuthorization:
		return "authorization"
	case KindInsufficientBalance:
		return "insufficient balance"
	case KindTransaction:
		return "transaction"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. They carry only a Kind.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrConfiguration       = &Error{Kind: KindConfiguration}
	ErrChainRead           = &Error{Kind: KindChainRead}
	ErrStateConflict       = &Error{Kind: KindStateConflict}
	ErrAuthorization       = &Error{Kind: KindAuthorization}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrTransaction         = &Error{Kind: KindTransaction}
	ErrTimeout             = &Error{Kind: KindTimeout}
)

// Error is the single concrete error type of the SDK.
type Error struct {
	Kind Kind
	// Op is the SDK operation that failed, e.g. "buyout.start".
	Op  string
	Msg string
	// Reason is the decoded revert reason, when the chain supplied one.
	Reason string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("vault: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "":
		b.WriteString(e.Msg)
	default:
		b.WriteString(e.Kind.String())
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind, or an Error with
// the same kind and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Msg == "" || t.Msg == e.Msg
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Validation returns a KindValidation error.
func Validation(op, format string, args ...any) *Error {
	return newf(KindValidation, op, format, args...)
}

// Configuration returns a KindConfiguration error.
func Configuration(op, format string, args ...any) *Error {
	return newf(KindConfiguration, op, format, args...)
}

// StateConflict returns a KindStateConflict error.
func StateConflict(op, format string, args ...any) *Error {
	return newf(KindStateConflict, op, format, args...)
}

// Authorization returns a KindAuthorization error.
func Authorization(op, format string, args ...any) *Error {
	return newf(KindAuthorization, op, format, args...)
}

// InsufficientBalance returns a KindInsufficientBalance error.
func InsufficientBalance(op, format string, args ...any) *Error {
	return newf(KindInsufficientBalance, op, format, args...)
}

// ChainRead wraps a failed read. Errors already typed by the SDK pass through.
func ChainRead(op string, err error) error {
	if KindOf(err) != 0 {
		return err
	}
	return &Error{Kind: KindChainRead, Op: op, Msg: "chain read failed", Reason: Reason(err), Err: err}
}

// Transaction wraps a failed estimation, submission or mining step.
func Transaction(op string, err error, revertReason string) error {
	if KindOf(err) != 0 {
		return err
	}
	if revertReason == "" {
		revertReason = Reason(err)
	}
	return &Error{Kind: KindTransaction, Op: op, Msg: "transaction failed", Reason: revertReason, Err: err}
}

// Timeout reports a receipt that did not arrive in time.
func Timeout(op string, err error) error {
	return &Error{Kind: KindTimeout, Op: op, Msg: "no receipt before deadline", Err: err}
}

// Reason extracts the human readable part of an error for display.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Reason != "" {
			return e.Reason
		}
		if e.Msg != "" {
			return e.Msg
		}
	}
	return err.Error()
}
