package domain

import "errors"

// Failures reported by the ledger and the components built on it. Callers
// match them with errors.Is; the messages are wrapped with context.
var (
	// ErrInsufficientFunds means a debit would take a balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAlreadyProcessed means the entity already reached a terminal state.
	ErrAlreadyProcessed = errors.New("already processed")
	// ErrAlreadyOnboarded means the mandatory first confirmation was already done.
	ErrAlreadyOnboarded = errors.New("already onboarded")
	// ErrNotFound means the entity is missing or not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTier means the boost tier code is unknown.
	ErrInvalidTier = errors.New("invalid boost tier")
	// ErrSelfReference means an operation named the same user on both sides,
	// such as subscribing to one's own channel.
	ErrSelfReference = errors.New("self reference rejected")
	// ErrInvalidAmount means a non-positive coin amount was supplied.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrDepositTooSmall means the deposit is under the minimum.
	ErrDepositTooSmall = errors.New("deposit below minimum")
	// ErrAlreadyExists means a unique field such as an email is taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidCredentials means the email or password did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput means a required field is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")
)
