package service

import (
	"context"

	"identity/internal/domain"
	"identity/internal/dto"
)

type MfaService interface {
	// IssueChallenge supersedes any outstanding code for the email before
	// storing and mailing a fresh one.
	IssueChallenge(ctx context.Context, email string) error
	Verify(ctx context.Context, r dto.OtpVerifyRequest, ip, ua string) (*dto.MfaResult, error)
	// TryTrustedBypass returns (nil, nil) when the device secret does not
	// match a live trusted device for this user.
	TryTrustedBypass(ctx context.Context, userID domain.UserID, rawSecret, ip, ua string) (*dto.SessionResult, error)
}
