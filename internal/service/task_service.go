package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"affluence/internal/domain"
	"affluence/internal/ledger"
	"affluence/internal/models"
)

// TaskRef is the ledger reference for userID completing taskID. A task pays
// each user once.
func TaskRef(taskID, userID uint) string {
	return fmt.Sprintf("task:%d:user:%d", taskID, userID)
}

type TaskService struct {
	engine    *ledger.Engine
	tasks     TaskStore
	referrals *ReferralService
}

func NewTaskService(engine *ledger.Engine, tasks TaskStore, referrals *ReferralService) *TaskService {
	return &TaskService{engine: engine, tasks: tasks, referrals: referrals}
}

func (s *TaskService) Create(ctx context.Context, t *models.Task) error {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	switch t.TaskType {
	case "":
		t.TaskType = domain.TaskTypeLink
	case domain.TaskTypeLink, domain.TaskTypeImage, domain.TaskTypeText:
	default:
		return fmt.Errorf("%w: task type %q", ErrInvalidInput, t.TaskType)
	}
	if t.RewardAmount <= 0 {
		return fmt.Errorf("%w: reward must be positive", ErrInvalidInput)
	}
	t.IsActive = true
	return s.tasks.CreateTask(ctx, t)
}

func (s *TaskService) List(ctx context.Context, activeOnly bool) ([]models.Task, error) {
	return s.tasks.ListTasks(ctx, activeOnly)
}

func (s *TaskService) SetActive(ctx context.Context, id uint, active bool) error {
	err := s.tasks.SetTaskActive(ctx, id, active)
	if errors.Is(err, domain.ErrNotFound) {
		return ErrTaskNotFound
	}
	return err
}

// Complete credits the task reward to userID's activity bucket and triggers
// the referrer's commission.
func (s *TaskService) Complete(ctx context.Context, userID, taskID uint) (*ledger.Result, error) {
	t, err := s.tasks.GetTask(ctx, taskID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, ErrTaskInactive
	}
	res, err := s.engine.Post(ctx, ledger.Posting{
		UserID:      userID,
		Bucket:      domain.BucketActivity,
		Type:        domain.EntryCredit,
		Amount:      t.RewardAmount,
		Source:      domain.SourceTask,
		Reference:   TaskRef(t.ID, userID),
		Idempotency: ledger.IdempotencyReject,
	})
	if errors.Is(err, ledger.ErrDuplicateReference) {
		return nil, fmt.Errorf("%w: %w", ErrTaskAlreadyCompleted, err)
	}
	if err != nil {
		return nil, err
	}
	log.Printf("[task] user %d completed task %d for %s", userID, t.ID, domain.FormatKobo(t.RewardAmount))
	if s.referrals != nil {
		s.referrals.Trigger(ctx, res.Transaction)
	}
	return res, nil
}
