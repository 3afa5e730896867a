package domain

import "time"

// OrderProjection is what leaves the system: the API layer serializes it
// and the broadcast hub carries it in order events. The QR usage flag and
// captured discount rate stay internal.
type OrderProjection struct {
	ID                 int64       `json:"id"`
	UserID             int64       `json:"user_id"`
	BranchID           int64       `json:"branch_id"`
	Status             OrderStatus `json:"status"`
	TotalPrice         float64     `json:"total_price"`
	QRCode             string      `json:"qr_code,omitempty"`
	QRExpireAt         time.Time   `json:"qr_expire_at,omitzero"`
	PaidBySubscription bool        `json:"paid_by_subscription"`
	Items              []OrderItem `json:"items,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}

func ProjectOrder(o Order) OrderProjection {
	return OrderProjection{
		ID:                 o.ID,
		UserID:             o.UserID,
		BranchID:           o.BranchID,
		Status:             o.Status,
		TotalPrice:         o.TotalPrice,
		QRCode:             o.QRCode,
		QRExpireAt:         o.QRExpireAt,
		PaidBySubscription: o.PaidBySubscription,
		Items:              o.Items,
		CreatedAt:          o.CreatedAt,
	}
}

// ProjectOrderPublic strips the QR credential, for broadcasts that reach
// screens other than the order's owner.
func ProjectOrderPublic(o Order) OrderProjection {
	p := ProjectOrder(o)
	p.QRCode = ""
	p.QRExpireAt = time.Time{}
	return p
}
