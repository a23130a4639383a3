package ledger

import "errors"

// Errors returned by ledger operations. A failed operation never leaves
// partial state behind.
var (
	ErrEmptyName         = errors.New("ledger: empty name")
	ErrEmptyEndpoint     = errors.New("ledger: empty endpoint")
	ErrZeroPrice         = errors.New("ledger: price must be positive")
	ErrZeroAmount        = errors.New("ledger: amount must be positive")
	ErrToolNotFound      = errors.New("ledger: tool not found")
	ErrToolInactive      = errors.New("ledger: tool inactive")
	ErrNotToolCreator    = errors.New("ledger: caller is not the tool creator")
	ErrNothingToWithdraw = errors.New("ledger: nothing to withdraw")
	ErrTransferFailed    = errors.New("ledger: token transfer failed")
)

// IsValidation reports whether err was caused by bad caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyName) ||
		errors.Is(err, ErrEmptyEndpoint) ||
		errors.Is(err, ErrZeroPrice) ||
		errors.Is(err, ErrZeroAmount)
}

// IsPrecondition reports whether err rejected an operation because of the
// current ledger state.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrToolInactive) || errors.Is(err, ErrNothingToWithdraw)
}
