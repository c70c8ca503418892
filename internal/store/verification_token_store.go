package store

import (
	"context"
	"errors"
	"time"

	"identity/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VerificationTokenStore struct{ db *gorm.DB }

func (s *Store) VerificationTokens() *VerificationTokenStore {
	return &VerificationTokenStore{db: s.DB}
}

func (vs *VerificationTokenStore) Create(ctx context.Context, tok *domain.VerificationToken) error {
	if tok.ID == uuid.Nil {
		tok.ID = uuid.New()
	}
	return vs.db.WithContext(ctx).Create(tok).Error
}

// Supersede removes every unconsumed token for (identifier, purpose) so that
// at most one token is redeemable at a time. Issuers call this before Create.
func (vs *VerificationTokenStore) Supersede(ctx context.Context, identifier string, purpose domain.TokenPurpose) (int64, error) {
	tx := vs.db.WithContext(ctx).
		Delete(&domain.VerificationToken{}, "identifier = ? AND purpose = ?", identifier, purpose)
	return tx.RowsAffected, tx.Error
}

// Consume redeems the token matching (identifier, value, purpose) if it is
// unexpired. The conditional delete is the commit point: when two redemptions
// race, exactly one observes RowsAffected == 1 and the other gets
// ErrRecordNotFound.
func (vs *VerificationTokenStore) Consume(ctx context.Context, identifier, value string, purpose domain.TokenPurpose, now time.Time) (*domain.VerificationToken, error) {
	var tok domain.VerificationToken
	err := vs.db.WithContext(ctx).
		First(&tok, "identifier = ? AND value = ? AND purpose = ? AND expires_at > ?", identifier, value, purpose, now).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return vs.deleteOnce(ctx, &tok)
}

// ConsumeByValue redeems a token looked up by value alone. Reset and
// email-verification tokens are long random strings, so the value is the key.
func (vs *VerificationTokenStore) ConsumeByValue(ctx context.Context, value string, purpose domain.TokenPurpose, now time.Time) (*domain.VerificationToken, error) {
	var tok domain.VerificationToken
	err := vs.db.WithContext(ctx).
		First(&tok, "value = ? AND purpose = ? AND expires_at > ?", value, purpose, now).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return vs.deleteOnce(ctx, &tok)
}

func (vs *VerificationTokenStore) deleteOnce(ctx context.Context, tok *domain.VerificationToken) (*domain.VerificationToken, error) {
	tx := vs.db.WithContext(ctx).Delete(&domain.VerificationToken{}, "id = ?", tok.ID)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		// Lost the race to a concurrent redemption.
		return nil, ErrRecordNotFound
	}
	return tok, nil
}
