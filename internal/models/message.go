package models

import "time"

// ChatMessage is one persisted direct message. The database assigns ID and
// CreatedAt; CreatedAt is the authoritative timestamp delivered to both
// inboxes.
type ChatMessage struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	SenderID    uint      `gorm:"not null;index:idx_pair"`
	RecipientID uint      `gorm:"not null;index:idx_pair"`
	Body        string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"index"`

	Sender    User `gorm:"foreignKey:SenderID"`
	Recipient User `gorm:"foreignKey:RecipientID"`
}
