package models

import "time"

// Task is an earning opportunity. Completing it credits RewardAmount to the
// user's activity bucket.
type Task struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Title        string    `gorm:"size:200;not null" json:"title"`
	TaskType     string    `gorm:"size:10;not null;default:'link'" json:"task_type"` // link | image | text
	TaskURL      string    `gorm:"size:500" json:"task_url"`
	Instructions string    `gorm:"type:text" json:"instructions"`
	RewardAmount int64     `gorm:"not null" json:"reward_amount"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }
