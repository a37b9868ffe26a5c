package store

import "errors"

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrMerchandiseNotFound = errors.New("merchandise not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)
