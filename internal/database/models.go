package database

import (
	"database/sql"
	"time"
)

// Account represents a monitored Fanvue account. Rows are inserted and
// updated externally; this system loads them read-only on each refresh
// cycle. An account drops out of active monitoring when its row is removed
// or its expiry passes.
type Account struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	APIKey       string         `db:"api_key"`
	SystemPrompt sql.NullString `db:"system_prompt"`
	ExpiresAt    time.Time      `db:"expires_at"`
	UserID       string         `db:"user_id"`
	LLM          sql.NullString `db:"llm"`
}

// Persona returns the account's persona text, or the empty string when the
// account has none configured. The reply generator substitutes its default
// persona for empty input.
func (a *Account) Persona() string {
	if a.SystemPrompt.Valid {
		return a.SystemPrompt.String
	}
	return ""
}
