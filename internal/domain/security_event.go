package domain

import "time"

type SecurityEventKind string

const (
	EventSecurity SecurityEventKind = "security"
	EventError    SecurityEventKind = "error"
	EventInfo     SecurityEventKind = "info"
)

type SecurityEvent struct {
	ID        string            `gorm:"primaryKey;size:64" json:"id"`
	Kind      SecurityEventKind `gorm:"size:16;index;not null" json:"kind"`
	Message   string            `gorm:"size:1024;not null" json:"message"`
	UserID    string            `gorm:"size:64;index" json:"user_id,omitempty"`
	IP        string            `gorm:"size:64;index" json:"ip,omitempty"`
	Attrs     map[string]any    `gorm:"serializer:json" json:"attrs,omitempty"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
}
