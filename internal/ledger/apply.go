package ledger

import (
	"fmt"

	"affluence/internal/domain"
	"affluence/internal/models"
)

// ApplyDelta moves one bucket of b by delta and recomputes the total in the
// same step. A result below zero fails with ErrInsufficientFunds and leaves b
// untouched.
func ApplyDelta(b *models.Balance, bucket domain.Bucket, delta int64) error {
	if !bucket.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidBucket, string(bucket))
	}
	cur, err := b.Bucket(bucket)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBucket, err)
	}
	next := cur + delta
	if (delta > 0 && next < cur) || (delta < 0 && next > cur) {
		return fmt.Errorf("%w: %s bucket overflow", ErrInvalidAmount, bucket)
	}
	if next < 0 {
		return fmt.Errorf("%w: %s balance %s, requested %s", ErrInsufficientFunds,
			bucket, domain.FormatKobo(cur), domain.FormatKobo(-delta))
	}
	if err := b.SetBucket(bucket, next); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBucket, err)
	}
	return nil
}
