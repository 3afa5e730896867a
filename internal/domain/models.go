package domain

import "time"

// Role is the closed set of principals the system knows about. Anything
// else is rejected at the boundary.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleCanteen Role = "canteen_admin"
	RoleCashier Role = "cashier"
	RoleClient  Role = "client"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleCanteen, RoleCashier, RoleClient:
		return true
	}
	return false
}

// Staff reports whether the role may drive the kitchen side of the order
// pipeline.
func (r Role) Staff() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleCanteen, RoleCashier:
		return true
	}
	return false
}

type Order struct {
	ID                 int64       `json:"id"`
	UserID             int64       `json:"user_id"`
	BranchID           int64       `json:"branch_id"`
	TotalPrice         float64     `json:"total_price"`
	Status             OrderStatus `json:"status"`
	QRCode             string      `json:"qr_code"`
	QRUsed             bool        `json:"qr_used"`
	QRExpireAt         time.Time   `json:"qr_expire_at"`
	PaidBySubscription bool        `json:"paid_by_subscription"`
	SubscriptionID     *int64      `json:"subscription_id,omitempty"`
	// DiscountPercentage is the plan rate captured when the order was
	// created. The revenue ledger reports with this rate, not the plan's
	// live one.
	DiscountPercentage float64     `json:"discount_percentage"`
	Items              []OrderItem `json:"items,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

type OrderItem struct {
	ID       int64   `json:"id"`
	OrderID  int64   `json:"order_id"`
	FoodID   int64   `json:"food_id"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Plan is a purchasable subscription definition ("subscriptions" table).
type Plan struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	Price              float64    `json:"price"`
	DurationDays       int        `json:"duration_days"`
	MealLimit          *int       `json:"meal_limit,omitempty"`
	DiscountPercentage float64    `json:"discount_percentage"`
	DailyLimit         *int       `json:"daily_limit,omitempty"`
	AllowedFrom        *TimeOfDay `json:"allowed_from,omitempty"`
	AllowedTo          *TimeOfDay `json:"allowed_to,omitempty"`
	BranchRestriction  bool       `json:"branch_restriction"`
	IsActive           bool       `json:"is_active"`
}

// Entitlement is a user's purchased plan instance ("user_subscriptions"
// table). RemainingMeals is nil for unlimited plans and otherwise only
// ever decreases.
type Entitlement struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	SubscriptionID int64     `json:"subscription_id"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	RemainingMeals *int      `json:"remaining_meals,omitempty"`
	IsActive       bool      `json:"is_active"`
}

func (e Entitlement) Expired(now time.Time) bool {
	return !now.Before(e.EndDate)
}

// BranchRevenue is one append-only ledger row, written exactly once at the
// order's terminal 'given' transition.
type BranchRevenue struct {
	ID             int64     `json:"id"`
	BranchID       int64     `json:"branch_id"`
	OrderID        int64     `json:"order_id"`
	SubscriptionID *int64    `json:"subscription_id,omitempty"`
	UserID         int64     `json:"user_id"`
	Amount         float64   `json:"amount"`
	DiscountAmount float64   `json:"discount_amount"`
	FinalAmount    float64   `json:"final_amount"`
	CreatedAt      time.Time `json:"created_at"`
}

type Branch struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	IsActive bool   `json:"is_active"`
}

type Food struct {
	ID          int64   `json:"id"`
	BranchID    int64   `json:"branch_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	IsAvailable bool    `json:"is_available"`
}
