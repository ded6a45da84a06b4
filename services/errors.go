package services

import (
	"errors"
	"fmt"

	"colorbet/models"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindStateConflict
	KindInsufficientBalance
	KindNotFound
	KindTransientStorage
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindNotFound:
		return "not_found"
	case KindTransientStorage:
		return "transient_storage"
	case KindInvariant:
		return "invariant_violation"
	}
	return "unknown"
}

// Error is a typed rejection. Two Errors match under errors.Is when their
// codes are equal.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidOutcome      = &Error{KindValidation, "INVALID_OUTCOME", "invalid outcome"}
	ErrInvalidAmount       = &Error{KindValidation, "INVALID_AMOUNT", "amount outside allowed stake range"}
	ErrLimitExceeded       = &Error{KindValidation, "LIMIT_EXCEEDED", "amount exceeds user bet limit"}
	ErrRoundClosed         = &Error{KindStateConflict, "ROUND_CLOSED", "round is not accepting bets"}
	ErrNoActiveRound       = &Error{KindStateConflict, "NO_ACTIVE_ROUND", "no active round"}
	ErrDuplicateBet        = &Error{KindStateConflict, "DUPLICATE_BET", "bet already placed in this round"}
	ErrAccountBlocked      = &Error{KindStateConflict, "ACCOUNT_BLOCKED", "account is blocked"}
	ErrCommissionApplied   = &Error{KindStateConflict, "COMMISSION_APPLIED", "commission already applied for this event"}
	ErrInsufficientBalance = &Error{KindInsufficientBalance, "INSUFFICIENT_BALANCE", "insufficient balance"}
	ErrUserNotFound        = &Error{KindNotFound, "USER_NOT_FOUND", "user not found"}
	ErrRoundNotFound       = &Error{KindNotFound, "ROUND_NOT_FOUND", "round not found"}
	ErrStorage             = &Error{KindTransientStorage, "STORAGE_UNAVAILABLE", "storage unavailable, retry later"}
	ErrInvariant           = &Error{KindInvariant, "INVARIANT_VIOLATION", "invariant violation"}
)

// DuplicateBetError carries the bet that already exists for the user and round.
type DuplicateBetError struct {
	Existing models.Bet
}

func (e *DuplicateBetError) Error() string {
	return fmt.Sprintf("bet already placed in round %d: %s %s",
		e.Existing.RoundNo, e.Existing.Outcome, e.Existing.Amount)
}

func (e *DuplicateBetError) Is(target error) bool { return target == ErrDuplicateBet }

// StorageError wraps a driver failure. The surrounding transaction has been
// rolled back and the operation may be retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	var dup *DuplicateBetError
	var se *StorageError
	if errors.As(err, &typed) || errors.As(err, &dup) || errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// KindOf classifies err. Untyped errors are treated as transient storage
// failures.
func KindOf(err error) Kind {
	var typed *Error
	var dup *DuplicateBetError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &dup):
		return KindStateConflict
	case errors.As(err, &typed):
		return typed.Kind
	}
	return KindTransientStorage
}

// CodeOf returns the machine readable code for err.
func CodeOf(err error) string {
	var typed *Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicateBet):
		return ErrDuplicateBet.Code
	case errors.As(err, &typed):
		return typed.Code
	}
	return ErrStorage.Code
}
