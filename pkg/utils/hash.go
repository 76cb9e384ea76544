package utils

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is enforced when staff passwords are set.
const MinPasswordLength = 8

// ErrPasswordTooShort is returned by HashPassword for short passwords.
var ErrPasswordTooShort = errors.New("password too short")

// HashPassword hashes a staff password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares plain password with hashed password.
func CheckPassword(plain, hashed string) bool {
	if hashed == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(hashed)), []byte(plain))
	return err == nil
}

// IsBcryptHash reports whether s looks like a bcrypt hash, so a plain password
// pasted into STAFF_PASSWORD_HASH is caught at startup.
func IsBcryptHash(s string) bool {
	_, err := bcrypt.Cost([]byte(strings.TrimSpace(s)))
	return err == nil
}
