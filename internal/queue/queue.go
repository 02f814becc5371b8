// Package queue carries referral commission jobs from the flow that earned
// them to the worker that posts them.
package queue

import (
	"context"
	"errors"

	"affluence/internal/domain"
)

var ErrClosed = errors.New("queue closed")

// CommissionJob describes one qualifying credit to a referred user.
type CommissionJob struct {
	SourceUserID uint            `json:"source_user_id"`
	SourceTxID   uint            `json:"source_tx_id"`
	SourceRef    string          `json:"source_ref"`
	Source       domain.TxSource `json:"source"`
	Amount       int64           `json:"amount"`
}

type Queue interface {
	Enqueue(ctx context.Context, job CommissionJob) error
	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (CommissionJob, error)
}

// ChannelQueue is an in-process Queue backed by a buffered channel.
type ChannelQueue struct {
	ch chan CommissionJob
}

func NewChannelQueue(size int) *ChannelQueue {
	if size <= 0 {
		size = 256
	}
	return &ChannelQueue{ch: make(chan CommissionJob, size)}
}

func (q *ChannelQueue) Enqueue(ctx context.Context, job CommissionJob) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *ChannelQueue) Dequeue(ctx context.Context) (CommissionJob, error) {
	select {
	case job, ok := <-q.ch:
		if !ok {
			return CommissionJob{}, ErrClosed
		}
		return job, nil
	case <-ctx.Done():
		return CommissionJob{}, ctx.Err()
	}
}

func (q *ChannelQueue) Len() int { return len(q.ch) }
