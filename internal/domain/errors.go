package domain

import "errors"

// Business outcomes. None of these indicate a system fault; handlers map
// them to 4xx responses and services never log them as errors.
var (
	// Validation faults.
	ErrBranchNotFound  = errors.New("branch not found or inactive")
	ErrFoodNotFound    = errors.New("food not found or unavailable")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrEmptyOrder      = errors.New("order must contain at least one item")
	ErrOrderNotFound   = errors.New("order not found")
	ErrPlanNotFound    = errors.New("subscription plan not found")
	ErrNoEntitlement   = errors.New("no active subscription")
	ErrUnknownStatus   = errors.New("unknown order status")
	ErrUnknownRole     = errors.New("unknown role")

	// Entitlement faults.
	ErrQuotaExhausted       = errors.New("subscription meal limit exhausted")
	ErrDailyLimitReached    = errors.New("subscription daily limit reached")
	ErrOutsideAllowedWindow = errors.New("subscription not usable at this time")

	// State faults.
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrQRNotFound        = errors.New("qr code not found")
	ErrQRUsed            = errors.New("qr code already used")
	ErrQRExpired         = errors.New("qr code expired")
	ErrNotOrderOwner     = errors.New("order belongs to another user")
)

// Integrity faults. Fatal to the single operation and logged for operator
// attention; never auto-corrected.
var (
	ErrEntitlementConflict = errors.New("more than one active subscription found")
)
