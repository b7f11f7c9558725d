// Package model defines the domain entities shared by the hub core
// and the datastore.
package model

import (
	"errors"
	"fmt"
)

const MaxUserNameLength = 32

var ErrUserNameEmpty = errors.New("user name must not be empty")
var ErrUserNameTooLong = fmt.Errorf("user name must not exceed %d characters", MaxUserNameLength)
var ErrUserNameInvalidChars = errors.New("user name must contain only alphanumeric characters, underscores, or hyphens")

// User represents a registered user. Password material (hash, salt) never
// appears here; it stays inside the datastore.
type User struct {
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	ServerID int64  `json:"server_id"`
	Staff    bool   `json:"staff"`
	Admin    bool   `json:"admin"`
}

// PublicUser is the subset of User fields announced to other clients.
type PublicUser struct {
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	Staff    bool   `json:"staff"`
	Admin    bool   `json:"admin"`
}

// Public returns the user's announceable fields.
func (u User) Public() PublicUser {
	return PublicUser{
		UserID:   u.UserID,
		UserName: u.UserName,
		Staff:    u.Staff,
		Admin:    u.Admin,
	}
}

// ValidateUserName checks that a user name is 1-32 ASCII alphanumeric,
// underscore, or hyphen characters. Returns nil on success or a descriptive error.
func ValidateUserName(name string) error {
	if len(name) == 0 {
		return ErrUserNameEmpty
	}
	if len(name) > MaxUserNameLength {
		return ErrUserNameTooLong
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return ErrUserNameInvalidChars
		}
	}
	return nil
}
