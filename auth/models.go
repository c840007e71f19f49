package auth

import (
	"time"

	"disputeflow/principal"
)

// Credential binds a principal to a hashed secret. It should not include JSON
// annotations so it can be reused by different presentation layers.
type Credential struct {
	Principal  principal.Principal
	SecretHash string
	CreatedAt  time.Time
}

// RegisterRequest contains the principal and secret supplied by callers.
type RegisterRequest struct {
	Principal string `json:"principal"`
	Secret    string `json:"secret"`
}

// LoginRequest contains principal credentials.
type LoginRequest struct {
	Principal string `json:"principal"`
	Secret    string `json:"secret"`
}
