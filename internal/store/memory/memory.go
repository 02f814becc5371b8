// Package memory is an in-process implementation of every storage interface
// used by the ledger and the services. It backs tests and DB_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"affluence/internal/domain"
	"affluence/internal/ledger"
	"affluence/internal/models"
)

type Store struct {
	mu sync.Mutex

	users       map[uint]*models.User
	balances    map[uint]*models.Balance // by user id
	txs         map[uint][]models.Transaction
	coupons     map[string]*models.Coupon
	tasks       map[uint]*models.Task
	withdrawals map[uint]*models.Withdrawal
	settings    map[string]*models.SystemSetting
	audits      []models.AuditLog
	repairs     []models.BalanceRepair

	rows map[uint]chan struct{} // per-user row locks held for the length of InUserTx

	nextUser, nextBalance, nextTx, nextCoupon, nextTask, nextWithdrawal, nextSetting, nextAudit, nextRepair uint

	failNext int
}

func New() *Store {
	return &Store{
		users:       map[uint]*models.User{},
		balances:    map[uint]*models.Balance{},
		txs:         map[uint][]models.Transaction{},
		coupons:     map[string]*models.Coupon{},
		tasks:       map[uint]*models.Task{},
		withdrawals: map[uint]*models.Withdrawal{},
		settings:    map[string]*models.SystemSetting{},
		rows:        map[uint]chan struct{}{},
	}
}

// FailNext makes the next n units of work fail with a transient error before
// touching any data.
func (s *Store) FailNext(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

// CorruptBalance edits a cached balance directly, bypassing the log. Tests use
// it to give the auditor something to repair.
func (s *Store) CorruptBalance(userID uint, fn func(b *models.Balance)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[userID]
	if !ok {
		b = &models.Balance{UserID: userID}
		s.nextBalance++
		b.ID = s.nextBalance
		s.balances[userID] = b
	}
	fn(b)
}

// AppendRawTransaction writes t to the log without touching the balance.
func (s *Store) AppendRawTransaction(t models.Transaction) models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTx++
	t.ID = s.nextTx
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.txs[t.UserID] = append(s.txs[t.UserID], t)
	return t
}

func now() time.Time { return time.Now().UTC() }

func (s *Store) rowLock(ctx context.Context, userID uint) (func(), error) {
	s.mu.Lock()
	ch, ok := s.rows[userID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rows[userID] = ch
	}
	s.mu.Unlock()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: row lock: %v", ledger.ErrTransient, ctx.Err())
	}
}

func (s *Store) InUserTx(ctx context.Context, userID uint, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	if s.failNext > 0 {
		s.failNext--
		s.mu.Unlock()
		return fmt.Errorf("%w: injected failure", ledger.ErrTransient)
	}
	s.mu.Unlock()

	release, err := s.rowLock(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	u, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ledger.ErrUserNotFound, userID)
	}
	user := *u
	var bal models.Balance
	if b, ok := s.balances[userID]; ok {
		bal = *b
	} else {
		bal = models.Balance{UserID: userID}
	}
	s.mu.Unlock()

	tx := &memTx{s: s, user: user, balance: bal}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}
	tx.commit()
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ledger.ErrUserNotFound, id)
	}
	c := *u
	return &c, nil
}

func (s *Store) GetBalance(ctx context.Context, userID uint) (*models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return nil, fmt.Errorf("%w: %d", ledger.ErrUserNotFound, userID)
	}
	b, ok := s.balances[userID]
	if !ok {
		return &models.Balance{UserID: userID}, nil
	}
	c := *b
	return &c, nil
}

func (s *Store) TransactionsAfter(ctx context.Context, userID uint, after ledger.Cursor, limit int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pageAfter(s.txs[userID], nil, after, limit), nil
}

func (s *Store) UserIDsAfter(ctx context.Context, afterID uint, limit int) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint, 0, len(s.users))
	for id := range s.users {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func pageAfter(committed, staged []models.Transaction, after ledger.Cursor, limit int) []models.Transaction {
	all := make([]models.Transaction, 0, len(committed)+len(staged))
	for _, list := range [][]models.Transaction{committed, staged} {
		for i := range list {
			if after.After(&list[i]) {
				all = append(all, list[i])
			}
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// memTx stages writes until commit. Coupon claims are applied to the shared
// map immediately, so a concurrent claim on the same code sees them, and are
// undone on rollback.
type memTx struct {
	s       *Store
	user    models.User
	balance models.Balance
	dirty   bool

	txs     []models.Transaction
	repairs []models.BalanceRepair
	claimed []string
	bonuses map[uint]int64
}

func (t *memTx) User() *models.User       { return &t.user }
func (t *memTx) Balance() *models.Balance { return &t.balance }

func (t *memTx) SaveBalance(b *models.Balance) error {
	if b.Version != t.balance.Version {
		return fmt.Errorf("%w: balance version %d, have %d", ledger.ErrTransient, t.balance.Version, b.Version)
	}
	b.UserID = t.user.ID
	b.Version++
	b.UpdatedAt = now()
	t.balance = *b
	t.dirty = true
	return nil
}

func (t *memTx) AppendTransaction(tr *models.Transaction) error {
	t.s.mu.Lock()
	t.s.nextTx++
	tr.ID = t.s.nextTx
	t.s.mu.Unlock()
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = now()
	}
	t.txs = append(t.txs, *tr)
	return nil
}

func (t *memTx) FindByReference(ref string) (*models.Transaction, error) {
	for i := range t.txs {
		if t.txs[i].Reference == ref {
			c := t.txs[i]
			return &c, nil
		}
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, tr := range t.s.txs[t.user.ID] {
		if tr.Reference == ref {
			c := tr
			return &c, nil
		}
	}
	return nil, nil
}

func (t *memTx) TransactionsAfter(after ledger.Cursor, limit int) ([]models.Transaction, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return pageAfter(t.s.txs[t.user.ID], t.txs, after, limit), nil
}

func (t *memTx) ClaimCoupon(code string, at time.Time) (*models.Coupon, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	c, ok := t.s.coupons[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrCouponNotFound, code)
	}
	if c.Status != domain.CouponUnused {
		return nil, fmt.Errorf("%w: %s", ledger.ErrCouponAlreadyUsed, code)
	}
	uid := t.user.ID
	used := at
	c.Status = domain.CouponUsed
	c.UsedBy = &uid
	c.UsedAt = &used
	c.UpdatedAt = at
	t.claimed = append(t.claimed, code)
	out := *c
	return &out, nil
}

func (t *memTx) SetCouponBonus(couponID uint, amount int64) error {
	if t.bonuses == nil {
		t.bonuses = map[uint]int64{}
	}
	t.bonuses[couponID] = amount
	return nil
}

func (t *memTx) RecordRepair(r *models.BalanceRepair) error {
	t.repairs = append(t.repairs, *r)
	return nil
}

func (t *memTx) rollback() {
	if len(t.claimed) == 0 {
		return
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, code := range t.claimed {
		if c, ok := t.s.coupons[code]; ok {
			c.Status = domain.CouponUnused
			c.UsedBy = nil
			c.UsedAt = nil
		}
	}
}

func (t *memTx) commit() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.dirty {
		b := t.balance
		if b.ID == 0 {
			if cur, ok := s.balances[b.UserID]; ok {
				b.ID = cur.ID
			} else {
				s.nextBalance++
				b.ID = s.nextBalance
			}
		}
		s.balances[b.UserID] = &b
	}
	s.txs[t.user.ID] = append(s.txs[t.user.ID], t.txs...)
	for _, r := range t.repairs {
		s.nextRepair++
		r.ID = s.nextRepair
		s.repairs = append(s.repairs, r)
	}
	for id, amount := range t.bonuses {
		for _, c := range s.coupons {
			if c.ID == id {
				c.BonusAmount = amount
			}
		}
	}
}

func paginate[T any](items []T, page, limit int) []T {
	if limit <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := min(start+limit, len(items))
	return items[start:end]
}

var _ ledger.Store = (*Store)(nil)
