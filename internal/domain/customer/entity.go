// internal/domain/customer/entity.go
package customer

import "time"

// Customer is the back-office customer record. Email and phone are pointers
// because the conversational create flow lets the operator skip either one.
type Customer struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     *string   `json:"email" db:"email"`
	Phone     *string   `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Order struct {
	ID         string    `json:"id" db:"id"`
	CustomerID string    `json:"customer_id" db:"customer_id"`
	Total      float64   `json:"total" db:"total"`
	Status     string    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// CustomerWithOrderCount is the listing projection used by "list customers".
type CustomerWithOrderCount struct {
	Customer
	OrderCount int `json:"order_count" db:"order_count"`
}

// UpdateFields carries a partial update; nil fields are left untouched.
type UpdateFields struct {
	Name  *string
	Email *string
	Phone *string
}

// CustomerSummary bundles a customer with their orders for "view customer".
type CustomerSummary struct {
	Customer Customer `json:"customer"`
	Orders   []Order  `json:"orders"`
}
