package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrAuth                 = errors.New("authentication failed")
	ErrNetwork              = errors.New("network failure")
	ErrInvalidTransactionID = errors.New("invalid transaction id format")
	ErrInvalidState         = errors.New("illegal order state transition")
	ErrInvalidAmount        = errors.New("amount mismatch")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrInvalidExecContext   = errors.New("invalid executor context")
	ErrOperationFailed      = errors.New("database operation failed")
	ErrReadDatabaseRow      = errors.New("failed to read database row")
	ErrLockNotAcquired      = errors.New("could not acquire lock")
)
