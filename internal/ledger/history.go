package ledger

import (
	"context"
	"iter"

	"affluence/internal/models"
)

// DefaultPageSize is the number of transactions fetched per round trip when
// replaying a log.
const DefaultPageSize = 500

// PageFunc fetches the next page of a user's log after a cursor.
type PageFunc func(after Cursor, limit int) ([]models.Transaction, error)

// Replay turns a PageFunc into a lazy, finite sequence ordered by
// (created_at, id). Ranging over the result again restarts from the first
// transaction. Iteration stops at the first error, which is yielded once.
func Replay(pages PageFunc, pageSize int) iter.Seq2[models.Transaction, error] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return func(yield func(models.Transaction, error) bool) {
		var cur Cursor
		for {
			page, err := pages(cur, pageSize)
			if err != nil {
				yield(models.Transaction{}, err)
				return
			}
			for i := range page {
				if !yield(page[i], nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			cur = CursorOf(&page[len(page)-1])
		}
	}
}

// History is the committed transaction log for userID.
func History(ctx context.Context, s Store, userID uint) iter.Seq2[models.Transaction, error] {
	return Replay(func(after Cursor, limit int) ([]models.Transaction, error) {
		return s.TransactionsAfter(ctx, userID, after, limit)
	}, DefaultPageSize)
}
