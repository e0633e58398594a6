// Package walleterr carries the error taxonomy shared by the session manager,
// the mint workflow and the HTTP layer. Kinds are presentation-only: nothing
// in this module retries or recovers based on them.
package walleterr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindProviderUnavailable Kind = "provider-unavailable"
	KindUserRejected        Kind = "user-rejected"
	KindNetworkMismatch     Kind = "network-mismatch"
	KindInsufficientBalance Kind = "insufficient-balance"
	KindInsufficientAllow   Kind = "insufficient-allowance"
	KindPrecondition        Kind = "contract-precondition-failed"
	KindRPC                 Kind = "rpc-error"
)

// Provider error codes per EIP-1193 / EIP-3085.
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
)

// Error pairs a taxonomy kind with the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf reports the taxonomy kind of err, defaulting to rpc-error for
// anything untyped.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindRPC
}

// coded matches go-ethereum's rpc.Error without importing it here.
type coded interface {
	error
	ErrorCode() int
}

// ErrorCode extracts a JSON-RPC error code from err, or 0.
func ErrorCode(err error) int {
	var c coded
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return 0
}

// Classify maps a raw provider/contract error onto the taxonomy. Wallet
// cancellations carry code 4001; a one-per-wallet revert surfaces as a
// precondition failure; everything else is a generic rpc-error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var we *Error
	if errors.As(err, &we) {
		return we
	}
	if ErrorCode(err) == CodeUserRejected {
		return Wrap(KindUserRejected, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "already minted") || strings.Contains(msg, "already claimed") {
		return Wrap(KindPrecondition, err)
	}
	return Wrap(KindRPC, err)
}
