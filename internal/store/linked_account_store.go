package store

import (
	"context"
	"errors"

	"identity/internal/domain"

	"gorm.io/gorm"
)

type LinkedAccountStore struct{ db *gorm.DB }

func (s *Store) LinkedAccounts() *LinkedAccountStore { return &LinkedAccountStore{db: s.DB} }

func (l *LinkedAccountStore) Get(ctx context.Context, provider domain.Provider, providerAccountID string) (*domain.LinkedAccount, error) {
	var link domain.LinkedAccount
	err := l.db.WithContext(ctx).
		First(&link, "provider = ? AND provider_account_id = ?", provider, providerAccountID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (l *LinkedAccountStore) Create(ctx context.Context, link *domain.LinkedAccount) error {
	return translateErr(l.db.WithContext(ctx).Create(link).Error)
}
