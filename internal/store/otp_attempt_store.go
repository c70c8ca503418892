package store

import (
	"context"
	"errors"
	"time"

	"identity/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OtpAttemptStore struct{ db *gorm.DB }

func (s *Store) OtpAttempts() *OtpAttemptStore { return &OtpAttemptStore{db: s.DB} }

func (os *OtpAttemptStore) Get(ctx context.Context, email, ip string) (*domain.OtpAttempt, error) {
	var att domain.OtpAttempt
	if err := os.db.WithContext(ctx).First(&att, "email = ? AND ip = ?", email, ip).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &att, nil
}

// RecordFailure increments the attempt counter for (email, ip), creating the
// row on the first failure, and sets locked_at once the post-increment count
// reaches maxAttempts. A failure arriving after an earlier lock has expired
// restarts the ladder from one, so every cooldown window grants the same
// bounded number of guesses. The row is locked for the duration of the
// transaction so two parallel wrong guesses cannot both read the same
// pre-increment count and skip the lock threshold.
func (os *OtpAttemptStore) RecordFailure(ctx context.Context, email, ip string, maxAttempts int, lockFor time.Duration, now time.Time) (*domain.OtpAttempt, error) {
	var out domain.OtpAttempt
	err := os.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var att domain.OtpAttempt
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&att, "email = ? AND ip = ?", email, ip).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			att = domain.OtpAttempt{
				Email:     email,
				IP:        ip,
				Attempts:  1,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if maxAttempts <= 1 {
				att.LockedAt = &now
			}
			if err := tx.Create(&att).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if att.LockedAt != nil && !att.Locked(now, lockFor) {
				att.Attempts = 0
				att.LockedAt = nil
			}
			att.Attempts++
			att.UpdatedAt = now
			if att.Attempts >= maxAttempts && att.LockedAt == nil {
				att.LockedAt = &now
			}
			if err := tx.Save(&att).Error; err != nil {
				return err
			}
		}
		out = att
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete resets the counter for (email, ip) after a successful verification.
func (os *OtpAttemptStore) Delete(ctx context.Context, email, ip string) error {
	return os.db.WithContext(ctx).
		Delete(&domain.OtpAttempt{}, "email = ? AND ip = ?", email, ip).Error
}
