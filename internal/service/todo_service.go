package service

import (
	"code_arena_backend/internal/model"
	"code_arena_backend/internal/repository"
	"code_arena_backend/internal/util"
	"errors"

	"gorm.io/gorm"
)

// TodoService 挑战待办清单
type TodoService struct {
	todos      *repository.TodoChallengeRepository
	challenges *repository.ChallengeRepository
}

func NewTodoService(todos *repository.TodoChallengeRepository, challenges *repository.ChallengeRepository) *TodoService {
	return &TodoService{todos: todos, challenges: challenges}
}

// Add 把题目加入用户待办，同一题未完成时不重复添加
func (s *TodoService) Add(userID uint, challengeSlug string) (*model.TodoChallenge, error) {
	challenge, err := s.challenges.FindBySlug(challengeSlug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrChallengeNotFound
		}
		return nil, err
	}

	if _, err := s.todos.FindPending(userID, challenge.ID); err == nil {
		return nil, util.ErrTodoExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	todo := &model.TodoChallenge{UserID: userID, ChallengeID: challenge.ID}
	if err := s.todos.Create(todo); err != nil {
		return nil, err
	}
	return todo, nil
}

func (s *TodoService) List(userID uint) ([]model.TodoChallenge, error) {
	return s.todos.ListByUser(userID)
}

// MarkDoneIfExists 题目通过后消费对应的未完成待办；没有待办不算错误
func (s *TodoService) MarkDoneIfExists(challengeID, userID uint) error {
	todo, err := s.todos.FindPending(userID, challengeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return s.todos.MarkDone(todo.ID)
}
