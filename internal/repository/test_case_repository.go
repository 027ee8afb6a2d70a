package repository

import (
	"code_arena_backend/internal/model"

	"gorm.io/gorm"
)

// TestCaseRepository 处理测试用例的数据库操作
type TestCaseRepository struct {
	DB *gorm.DB
}

func NewTestCaseRepository(db *gorm.DB) *TestCaseRepository {
	return &TestCaseRepository{DB: db}
}

// FindByIDs 按主键集合加载测试用例，恒按 ID 升序返回
func (r *TestCaseRepository) FindByIDs(ids []uint) ([]model.TestCase, error) {
	var testCases []model.TestCase
	err := r.DB.Where("id IN ?", ids).Order("id ASC").Find(&testCases).Error
	return testCases, err
}

// FindByChallenge 加载某题的全部测试用例，恒按 ID 升序返回
func (r *TestCaseRepository) FindByChallenge(challengeID uint) ([]model.TestCase, error) {
	var testCases []model.TestCase
	err := r.DB.Where("challenge_id = ?", challengeID).Order("id ASC").Find(&testCases).Error
	return testCases, err
}

func (r *TestCaseRepository) CreateBatch(testCases []model.TestCase) error {
	return r.DB.Create(&testCases).Error
}
