package recipients

import "github.com/google/uuid"

// User is a directory entry. Produced by the external directory service and
// read-only here; equality is by value so set union deduplicates naturally.
type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Admin    bool   `json:"admin"`
	Active   bool   `json:"active"`
}

// RecipientSettings is one declarative request for a recipient subset.
// Multiple settings combine by union for a single notification.
type RecipientSettings struct {
	OnlyAdmins            bool
	IgnoreUserPreferences bool
	GroupID               *uuid.UUID
	// Users is an explicit username allow-list. When non-empty, the candidate
	// pool is intersected with it, case-sensitively.
	Users []string
}
