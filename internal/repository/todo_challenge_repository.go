package repository

import (
	"code_arena_backend/internal/model"

	"gorm.io/gorm"
)

// TodoChallengeRepository 处理挑战待办清单的数据库操作
type TodoChallengeRepository struct {
	DB *gorm.DB
}

func NewTodoChallengeRepository(db *gorm.DB) *TodoChallengeRepository {
	return &TodoChallengeRepository{DB: db}
}

func (r *TodoChallengeRepository) Create(todo *model.TodoChallenge) error {
	return r.DB.Create(todo).Error
}

// FindPending 查找用户对某题的未完成待办
func (r *TodoChallengeRepository) FindPending(userID, challengeID uint) (*model.TodoChallenge, error) {
	var todo model.TodoChallenge
	err := r.DB.Where("user_id = ? AND challenge_id = ? AND is_done = ?", userID, challengeID, false).
		First(&todo).Error
	if err != nil {
		return nil, err
	}
	return &todo, nil
}

func (r *TodoChallengeRepository) MarkDone(id uint) error {
	return r.DB.Model(&model.TodoChallenge{}).Where("id = ?", id).
		Update("is_done", true).Error
}

func (r *TodoChallengeRepository) ListByUser(userID uint) ([]model.TodoChallenge, error) {
	var todos []model.TodoChallenge
	err := r.DB.Preload("Challenge").
		Where("user_id = ? AND is_done = ?", userID, false).
		Order("created_at DESC").
		Limit(10).
		Find(&todos).Error
	return todos, err
}
