package domain

import "errors"

// Storage-level outcomes shared by the gorm repositories and the in-memory
// store. Ledger-specific failures live in internal/ledger.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)
