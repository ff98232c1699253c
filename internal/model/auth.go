package model

import "time"

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required,notblank"`
}

// User is the identity returned by the auth endpoints.
type User struct {
	ID    string `json:"id" validate:"required"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AuthSession describes the identity provider session behind a token.
type AuthSession struct {
	ID     string    `json:"id"`
	Expire time.Time `json:"expire"`
}

type AuthResponse struct {
	User    User        `json:"user"`
	Session AuthSession `json:"session"`
	Token   string      `json:"token" validate:"required"`
}

type UserResponse struct {
	User User `json:"user"`
}

type LogoutResponse struct {
	Success bool `json:"success"`
}
