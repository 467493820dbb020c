// Package model holds the records shared by the store, services and handlers.
package model

import "time"

// User represents a registered account.
//
// Users register with email + password. A GitHub login can be linked later;
// GitHubID stays nil for accounts that never used it, which is why it's a
// pointer (the column is NULL, and UNIQUE only applies to non-NULL values).
//
// PasswordHash carries the `json:"-"` tag so that a User can be written to a
// response as-is without ever exposing the bcrypt hash.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Name         string    `json:"name"      db:"name"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	GitHubID     *int64    `json:"-"         db:"github_id"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Owner is the public projection of a User embedded in component responses.
type Owner struct {
	ID   string `json:"id"   db:"id"`
	Name string `json:"name" db:"name"`
}
