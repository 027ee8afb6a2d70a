package repository

import (
	"code_arena_backend/internal/model"

	"gorm.io/gorm"
)

// ChallengeRepository 处理挑战题目的数据库操作
type ChallengeRepository struct {
	DB *gorm.DB
}

func NewChallengeRepository(db *gorm.DB) *ChallengeRepository {
	return &ChallengeRepository{DB: db}
}

func (r *ChallengeRepository) FindBySlug(slug string) (*model.Challenge, error) {
	var challenge model.Challenge
	err := r.DB.Where("slug = ?", slug).First(&challenge).Error
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

// FindDetailBySlug 加载题目详情：提示、标签、模板代码，测试用例只带示例用例
func (r *ChallengeRepository) FindDetailBySlug(slug string) (*model.Challenge, error) {
	var challenge model.Challenge
	err := r.DB.
		Preload("Hints").
		Preload("Tags").
		Preload("ChallengeDetails").
		Preload("TestCases", func(db *gorm.DB) *gorm.DB {
			return db.Where("is_sampled = ?", true).Order("id ASC")
		}).
		Where("slug = ?", slug).
		First(&challenge).Error
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

func (r *ChallengeRepository) List(page, limit int) ([]model.Challenge, int64, error) {
	var challenges []model.Challenge
	var total int64

	if err := r.DB.Model(&model.Challenge{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.DB.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&challenges).Error
	if err != nil {
		return nil, 0, err
	}
	return challenges, total, nil
}

// Create 在一个事务里保存题目及其提示与标签关联
func (r *ChallengeRepository) Create(challenge *model.Challenge, tagIDs []uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(challenge).Error; err != nil {
			return err
		}
		if len(tagIDs) > 0 {
			var tags []model.Tag
			if err := tx.Where("id IN ?", tagIDs).Find(&tags).Error; err != nil {
				return err
			}
			if err := tx.Model(challenge).Association("Tags").Append(&tags); err != nil {
				return err
			}
		}
		return nil
	})
}

// DifficultyCount 按难度统计
type DifficultyCount struct {
	Difficulty model.Difficulty `json:"difficulty"`
	Total      int64            `json:"total"`
}

func (r *ChallengeRepository) CountByDifficulty() ([]DifficultyCount, error) {
	var counts []DifficultyCount
	err := r.DB.Model(&model.Challenge{}).
		Select("difficulty, COUNT(id) AS total").
		Group("difficulty").
		Scan(&counts).Error
	return counts, err
}

// CountAcceptedByUser 统计用户按难度已通过的题数
func (r *ChallengeRepository) CountAcceptedByUser(userID uint) ([]DifficultyCount, error) {
	var counts []DifficultyCount
	err := r.DB.Model(&model.UserChallengeResult{}).
		Select("challenges.difficulty, COUNT(user_challenge_results.id) AS total").
		Joins("INNER JOIN challenges ON challenges.id = user_challenge_results.challenge_id").
		Where("user_challenge_results.user_id = ? AND user_challenge_results.status = ?", userID, model.ResultDone).
		Group("challenges.difficulty").
		Scan(&counts).Error
	return counts, err
}
