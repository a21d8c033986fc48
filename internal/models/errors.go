package models

import "errors"

var (
	ErrProductNotFound        = errors.New("product not found or not sellable")
	ErrOrderNotFound          = errors.New("order not found")
	ErrGatewayNotFound        = errors.New("gateway not found")
	ErrGatewayUnavailable     = errors.New("gateway is disabled")
	ErrKeyNotFound            = errors.New("key not found")
	ErrInsufficientInventory  = errors.New("insufficient key inventory")
	ErrInvalidStateTransition = errors.New("invalid order state transition")
	ErrSignatureInvalid       = errors.New("callback signature invalid")
	ErrAmountMismatch         = errors.New("callback amount does not match order")
	ErrDuplicateAccessCode    = errors.New("access code already settled for gateway")
)
