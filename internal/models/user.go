// Package models defines domain models for the NovelMaze platform.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User role constants.
const (
	RoleReader    = "reader"
	RoleAuthor    = "author"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// User represents a platform account (reader, author or staff).
type User struct {
	ID          string                      `gorm:"primaryKey;size:36" json:"id"`
	Username    string                      `gorm:"uniqueIndex;not null;size:255" json:"username"`
	Email       string                      `gorm:"size:255" json:"email"`
	DisplayName string                      `gorm:"size:255" json:"display_name"`
	Roles       datatypes.JSONSlice[string] `json:"roles"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns a UUID when none was provided.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// HasRole reports whether the user holds any of the given roles.
func (u *User) HasRole(roles ...string) bool {
	for _, have := range u.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// IsStaff reports whether the user is an admin or moderator.
func (u *User) IsStaff() bool {
	return u.HasRole(RoleAdmin, RoleModerator)
}
