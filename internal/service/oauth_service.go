package service

import (
	"context"

	"identity/internal/domain"
	"identity/internal/dto"
)

type OAuthService interface {
	Begin(ctx context.Context, provider domain.Provider) (*dto.OAuthBegin, error)
	HandleCallback(ctx context.Context, r dto.OAuthCallbackRequest, ip, ua string) (*dto.OAuthResult, error)
}
