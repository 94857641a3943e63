package model

import "time"

// PaymentIntent records who is expected to pay for which room while the
// gateway confirmation is still in flight. Written once on initiation,
// read once by the reconciler, never updated.
type PaymentIntent struct {
	ID                uint      `gorm:"primaryKey" json:"-"`
	MerchantRequestID string    `gorm:"size:64;uniqueIndex" json:"merchant_request_id"`
	UserID            string    `gorm:"size:36" json:"user_id"`
	RoomID            string    `gorm:"size:36" json:"room_id"`
	RoomName          string    `gorm:"size:100" json:"room_name"`
	PhoneNumber       string    `gorm:"size:15" json:"phone_number"`
	CreatedAt         time.Time `json:"created_at"`
}

const (
	TxPending    = "pending"
	TxSuccessful = "successful"
	TxFailed     = "failed"
)

// Transaction is the append-only audit record of a reconciled payment.
// The unique index on receipt_number is what makes duplicate callback
// deliveries insert exactly once.
type Transaction struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	PhoneNumber   string     `gorm:"size:15" json:"phone_number"`
	Amount        float64    `json:"amount"`
	ReceiptNumber string     `gorm:"size:30;uniqueIndex" json:"receipt_number"`
	Status        string     `gorm:"size:20;default:pending" json:"status"`
	Description   string     `json:"description"`
	RoomID        string     `gorm:"size:36;index" json:"room_id"`
	PaidAt        *time.Time `json:"paid_at,omitempty"` // gateway's TransactionDate; CreatedAt is when we reconciled
	CreatedAt     time.Time  `json:"created_at"`
}
