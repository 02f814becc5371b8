package repository

import (
	"context"
	"fmt"

	"affluence/internal/domain"
	"affluence/internal/models"

	"gorm.io/gorm"
)

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) CreateTask(ctx context.Context, t *models.Task) error {
	return wrap(r.db.WithContext(ctx).Create(t).Error, "create task")
}

func (r *TaskRepository) GetTask(ctx context.Context, id uint) (*models.Task, error) {
	var t models.Task
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, wrap(err, fmt.Sprintf("task %d", id))
	}
	return &t, nil
}

func (r *TaskRepository) ListTasks(ctx context.Context, activeOnly bool) ([]models.Task, error) {
	q := r.db.WithContext(ctx).Model(&models.Task{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var list []models.Task
	err := q.Order("created_at DESC").Find(&list).Error
	return list, wrap(err, "list tasks")
}

func (r *TaskRepository) SetTaskActive(ctx context.Context, id uint, active bool) error {
	res := r.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return wrap(res.Error, "update task")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: task %d", domain.ErrNotFound, id)
	}
	return nil
}
