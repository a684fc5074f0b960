package auth

import "time"

type Role string

const (
	RoleParty Role = "party"
	RoleAdmin Role = "admin"
)

// Account is the domain representation of an authenticated account. It
// mirrors the accounts table and carries no JSON annotations so it can be
// reused by different presentation layers.
type Account struct {
	Account      string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains registration data supplied by callers. Account is
// the on-ledger account name the caller will act as.
type RegisterRequest struct {
	Account  string `json:"account"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}
