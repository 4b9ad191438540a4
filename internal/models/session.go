package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// SessionDuration is the absolute lifetime of a session
	SessionDuration = time.Hour * 24 * 7 // 1 week
	// SessionIdleTimeout ends sessions that have not been used for this long
	SessionIdleTimeout = time.Hour * 24
	// SessionTouchInterval limits how often LastActiveAt is written
	SessionTouchInterval = time.Minute * 5
)

// Session represents a logged-in browser session
type Session struct {
	ID           string                       `gorm:"primaryKey;size:64" json:"-"`
	Subject      string                       `gorm:"size:255;index;not null" json:"-"`
	Identity     datatypes.JSONType[Identity] `json:"-"`
	IDToken      string                       `gorm:"type:text" json:"-"`
	CreatedAt    time.Time                    `gorm:"not null" json:"-"`
	LastActiveAt time.Time                    `gorm:"not null" json:"-"`
	ExpiresAt    time.Time                    `gorm:"index" json:"-"`
}

// BeforeCreate hook for sessions
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.LastActiveAt.IsZero() {
		s.LastActiveAt = now
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = s.CreatedAt.Add(SessionDuration)
	}
	return nil
}

// IsExpired checks the absolute and idle limits at the given time
func (s *Session) IsExpired(now time.Time) bool {
	if now.After(s.ExpiresAt) {
		return true
	}
	return now.Sub(s.LastActiveAt) > SessionIdleTimeout
}

// NeedsTouch reports whether LastActiveAt is stale enough to rewrite
func (s *Session) NeedsTouch(now time.Time) bool {
	return now.Sub(s.LastActiveAt) >= SessionTouchInterval
}

// TableName specifies the table name for the Session model
func (Session) TableName() string {
	return "sessions"
}
