package database

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrConflict is returned when a transaction keeps losing to concurrent
// writers after all retry attempts.
var ErrConflict = errors.New("conflicting concurrent update")

// maxAttempts bounds retries on transient store conflicts.
const maxAttempts = 3

// Transact runs fn inside a transaction, retrying up to maxAttempts times
// when the store reports a serialization or duplicate-key conflict. Anything
// else is returned as-is on the first failure.
func Transact(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = db.WithContext(ctx).Transaction(fn)
		if err == nil || !IsConflict(err) {
			return err
		}
	}
	return errors.Join(ErrConflict, err)
}

// IsConflict reports whether err looks like a retryable write conflict:
// a duplicate-key violation from a racing insert or a serialization failure.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "serialization failure")
}
