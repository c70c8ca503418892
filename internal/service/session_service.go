package service

import (
	"context"

	"identity/internal/domain"
	"identity/internal/dto"
)

type SessionService interface {
	Create(ctx context.Context, userID domain.UserID, ip, ua string) (*dto.SessionResult, error)
	// Get returns domain.ErrUnauthenticated for missing or expired tokens.
	Get(ctx context.Context, rawToken string) (*domain.Session, error)
	Revoke(ctx context.Context, rawToken string) error
	RevokeAll(ctx context.Context, userID domain.UserID) error
}
