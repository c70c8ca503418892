package store

import (
	"context"
	"errors"

	"identity/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionStore struct{ db *gorm.DB }

func (s *Store) Sessions() *SessionStore { return &SessionStore{db: s.DB} }

func (ss *SessionStore) Create(ctx context.Context, sess *domain.Session) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	return ss.db.WithContext(ctx).Create(sess).Error
}

func (ss *SessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var sess domain.Session
	if err := ss.db.WithContext(ctx).First(&sess, "token_hash = ?", tokenHash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &sess, nil
}

// DeleteByTokenHash removes one session and reports whether a row existed.
func (ss *SessionStore) DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error) {
	tx := ss.db.WithContext(ctx).Delete(&domain.Session{}, "token_hash = ?", tokenHash)
	return tx.RowsAffected, tx.Error
}

func (ss *SessionStore) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tx := ss.db.WithContext(ctx).Delete(&domain.Session{}, "user_id = ?", userID)
	return tx.RowsAffected, tx.Error
}
