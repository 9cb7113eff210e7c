package account

import "time"

type Role string

const (
	RoleTrader  Role = "trader"
	RoleArbiter Role = "arbiter"
	RoleAdmin   Role = "admin"
)

// Account is the domain representation of an authenticated principal. The
// Address field is the settlement address every engine authorization check
// runs against; it is assigned at registration and never changes.
type Account struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Address      string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains account registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
