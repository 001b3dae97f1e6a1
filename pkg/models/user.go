package models

import "time"

// User represents a registered account. Password holds the serialized
// credential record (pbkdf2_sha256$iters$salt$hash), never the plaintext.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Password  string    `json:"-" db:"password_hash"` // Never return password hash in JSON
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UserRegisterRequest represents the request payload for user registration
type UserRegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserLoginRequest represents the request payload for user login
type UserLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
