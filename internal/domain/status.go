package domain

import "fmt"

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusAccepted  OrderStatus = "accepted"
	StatusCooking   OrderStatus = "cooking"
	StatusReady     OrderStatus = "ready"
	StatusGiven     OrderStatus = "given"
	StatusCancelled OrderStatus = "cancelled"
)

// allowedTransitions is the whole state machine: pending moves forward to
// accepted (QR-gated) or sideways to cancelled; everything else is a
// straight line to given.
var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending:  {StatusAccepted: true, StatusCancelled: true},
	StatusAccepted: {StatusCooking: true},
	StatusCooking:  {StatusReady: true},
	StatusReady:    {StatusGiven: true},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	switch status {
	case StatusPending, StatusAccepted, StatusCooking, StatusReady, StatusGiven, StatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return allowedTransitions[s][next]
}

// Terminal reports whether no further transition can leave the state.
func (s OrderStatus) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}
