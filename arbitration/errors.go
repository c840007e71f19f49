package arbitration

import (
	"context"
	"errors"
	"fmt"

	"disputeflow/principal"
)

// Kind classifies a failure so integrators can branch on it with errors.Is.
type Kind string

const (
	KindNotFound     Kind = "not found"
	KindUnauthorized Kind = "unauthorized"
	KindInvalidState Kind = "invalid state"
	KindTransfer     Kind = "transfer failed"
	KindInvalidInput Kind = "invalid input"
)

func (k Kind) Error() string { return string(k) }

// Error is a domain failure of a known Kind. Err optionally records the
// underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// NewError returns a domain error of the given kind.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// KindOf returns the Kind of err, if it is a domain error.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

var (
	ErrNotInitialized          = NewError(KindInvalidState, "not initialized")
	ErrAlreadyInitialized      = NewError(KindInvalidState, "already initialized")
	ErrUnauthorized            = NewError(KindUnauthorized, "unauthorized")
	ErrArbitratorNotAuthorized = NewError(KindUnauthorized, "arbitrator not authorized")
	ErrDisputeNotFound         = NewError(KindNotFound, "dispute not found")
	ErrAppealNotFound          = NewError(KindNotFound, "appeal not found")
	ErrNotAssignedArbitrator   = NewError(KindUnauthorized, "not assigned arbitrator")
	ErrDisputeNotFiled         = NewError(KindInvalidState, "dispute already has an arbitrator")
	ErrDisputeNotUnderReview   = NewError(KindInvalidState, "dispute not under review")
	ErrDisputeNotResolved      = NewError(KindInvalidState, "can only appeal resolved disputes")
	ErrNotDisputeParty         = NewError(KindUnauthorized, "only claimant or respondent can appeal")
	ErrAppealNotPending        = NewError(KindInvalidState, "appeal not pending")
	ErrNoPendingAdmin          = NewError(KindInvalidState, "no pending admin")
	ErrNotPendingAdmin         = NewError(KindUnauthorized, "not pending admin")
	ErrInsufficientBalance     = NewError(KindTransfer, "insufficient balance")
	ErrInvalidOutcome          = NewError(KindInvalidInput, "invalid outcome")
	ErrNegativeFee             = NewError(KindInvalidInput, "fees must not be negative")
	ErrInvalidAmount           = NewError(KindInvalidInput, "amount must be positive")
	ErrEscrowAccountParty      = NewError(KindInvalidInput, "escrow account cannot be a dispute party")
)

// RequireAuth checks that the call was authorized by p and reports a failure
// as KindUnauthorized.
func RequireAuth(ctx context.Context, authz principal.Authorizer, p principal.Principal) error {
	if err := authz.RequireAuth(ctx, p); err != nil {
		return &Error{Kind: KindUnauthorized, Msg: fmt.Sprintf("authorization required from %q", p), Err: err}
	}
	return nil
}
