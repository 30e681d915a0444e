package domain

import (
	"net/mail"
	"strings"
	"time"
)

// Account is a registered user able to sign in.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Credentials is the sign-in and sign-up payload.
type Credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize lower-cases the email and checks both fields are usable.
func (c Credentials) Normalize() (Credentials, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.Email == "" {
		return c, &ValidationError{Field: "email", Reason: "Email is required"}
	}
	if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		return c, &ValidationError{Field: "email", Reason: "Invalid email address"}
	}
	if c.Password == "" {
		return c, &ValidationError{Field: "password", Reason: "Password is required"}
	}
	return c, nil
}
