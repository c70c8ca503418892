package service

import (
	"context"

	"identity/internal/domain"
	"identity/internal/dto"
)

type AuthService interface {
	Register(ctx context.Context, r dto.RegisterRequest) (*dto.RegisterResponse, error)
	Login(ctx context.Context, r dto.LoginRequest, ip, ua string) (*dto.LoginResult, error)
	VerifyEmail(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	// CurrentUser resolves a raw session token to its identity, or
	// domain.ErrUnauthenticated.
	CurrentUser(ctx context.Context, rawToken string) (*domain.User, error)
	Logout(ctx context.Context, rawToken string) error
	LogoutAll(ctx context.Context, userID domain.UserID) error
}
