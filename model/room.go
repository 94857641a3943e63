package model

import "time"

const (
	RoleOwner  = "owner"
	RoleMember = "member"

	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentOverdue = "overdue"
)

type Room struct {
	RoomID      string    `gorm:"primaryKey;size:36" json:"room_id"`
	OwnerID     string    `gorm:"size:36;index" json:"owner_id"`
	Name        string    `gorm:"size:100" json:"name"`
	Description string    `json:"description"`
	ServiceType string    `gorm:"size:50" json:"service_type"` // netflix | spotify | disney+ | hbomax | youtube | appletv
	Cost        float64   `json:"cost"`
	DueDate     time.Time `json:"due_date"`
	CreatedAt   time.Time `json:"created_at"`
}

type RoomMember struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	RoomID          string     `gorm:"size:36;uniqueIndex:idx_room_user;index" json:"room_id"`
	UserID          string     `gorm:"size:36;uniqueIndex:idx_room_user;index" json:"user_id"`
	Role            string     `gorm:"size:20;default:member" json:"role"`
	PaymentStatus   string     `gorm:"size:20;default:pending;index" json:"payment_status"`
	LastPaymentDate *time.Time `json:"last_payment_date,omitempty"`
	JoinDate        time.Time  `gorm:"autoCreateTime" json:"join_date"`
	IsActive        bool       `gorm:"default:true" json:"is_active"`
}

func (RoomMember) TableName() string {
	return "room_members"
}
