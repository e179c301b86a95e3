package domain

import "time"

// Status is a user's live presence state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusOffline Status = "offline"
)

// User is a registered identity. Secret holds a bcrypt hash and is compared,
// never decrypted. The live connection itself is owned by the hub; a user with
// no bound connection is offline regardless of how stale Status is.
type User struct {
	Username   string
	Secret     string
	Status     Status
	LastActive time.Time
	Activity   string
}
