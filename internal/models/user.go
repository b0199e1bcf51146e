package models

import "time"

// Roles a User can hold. Exactly one agent account exists per deployment;
// it owns the well-known support inbox every customer talks to.
const (
	RoleAgent    = "agent"
	RoleCustomer = "customer"
)

// User is a chat participant: the support agent or a customer.
type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"size:190;uniqueIndex;not null" json:"username"`
	DisplayName  string    `gorm:"size:120;not null" json:"displayName"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         string    `gorm:"size:16;not null;default:customer;index" json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsAgent reports whether the user holds the well-known agent identity.
func (u *User) IsAgent() bool {
	return u.Role == RoleAgent
}
