package models

import (
	"time"
)

// User is the local record mirrored from an identity provider subject
type User struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Auth0ID    string    `gorm:"column:auth0_id;uniqueIndex;size:255;not null" json:"auth0_id"`
	GivenName  string    `gorm:"size:255" json:"given_name"`
	FamilyName string    `gorm:"size:255" json:"family_name"`
	Email      string    `gorm:"size:255" json:"email"`
	Picture    *string   `gorm:"type:text" json:"picture"` // NULL when the provider sent none
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}
