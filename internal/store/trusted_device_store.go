package store

import (
	"context"
	"errors"
	"time"

	"identity/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TrustedDeviceStore struct{ db *gorm.DB }

func (s *Store) TrustedDevices() *TrustedDeviceStore { return &TrustedDeviceStore{db: s.DB} }

func (ts *TrustedDeviceStore) Create(ctx context.Context, dev *domain.TrustedDevice) error {
	if dev.ID == uuid.Nil {
		dev.ID = uuid.New()
	}
	return ts.db.WithContext(ctx).Create(dev).Error
}

// GetByUserAndHash matches a non-expired trusted device owned by this user.
// A fingerprint issued to another user never matches here.
func (ts *TrustedDeviceStore) GetByUserAndHash(ctx context.Context, userID uuid.UUID, secretHash string, now time.Time) (*domain.TrustedDevice, error) {
	var dev domain.TrustedDevice
	err := ts.db.WithContext(ctx).
		First(&dev, "user_id = ? AND secret_hash = ? AND expires_at > ?", userID, secretHash, now).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &dev, nil
}

func (ts *TrustedDeviceStore) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tx := ts.db.WithContext(ctx).Delete(&domain.TrustedDevice{}, "user_id = ?", userID)
	return tx.RowsAffected, tx.Error
}

func (ts *TrustedDeviceStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tx := ts.db.WithContext(ctx).Delete(&domain.TrustedDevice{}, "expires_at <= ?", now)
	return tx.RowsAffected, tx.Error
}
