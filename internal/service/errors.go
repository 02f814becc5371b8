package service

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrEmailExists          = errors.New("email already registered")
	ErrUsernameExists       = errors.New("username already taken")
	ErrInvalidCreds         = errors.New("invalid email or password")
	ErrAccountDisabled      = errors.New("account is disabled")
	ErrTaskNotFound         = errors.New("task not found")
	ErrTaskInactive         = errors.New("task is not active")
	ErrTaskAlreadyCompleted = errors.New("task already completed")
	ErrBelowMinimum         = errors.New("amount is below the minimum withdrawal")
	ErrWithdrawalNotFound   = errors.New("withdrawal not found")
	ErrWithdrawalState      = errors.New("withdrawal is not pending")
)
