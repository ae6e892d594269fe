package model

import "time"

// UserSettings holds a user's notification preferences.
type UserSettings struct {
	UserID      string `gorm:"primaryKey;size:64"`
	PushEnabled bool   `gorm:"not null"`
	AlertEmail  string `gorm:"size:256"` // missed-dose alerts are e-mailed here when set
	UpdatedAt   time.Time
}
