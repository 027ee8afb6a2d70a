package repository

import (
	"code_arena_backend/internal/model"

	"gorm.io/gorm"
)

// UserChallengeResultRepository 处理判题记录的数据库操作。
// 终态迁移使用条件更新（WHERE status = 'PENDING'）加事务，保证并发轮询下
// 记录迁移与题目计数器自增最多执行一次。
type UserChallengeResultRepository struct {
	DB *gorm.DB
}

func NewUserChallengeResultRepository(db *gorm.DB) *UserChallengeResultRepository {
	return &UserChallengeResultRepository{DB: db}
}

func (r *UserChallengeResultRepository) Create(result *model.UserChallengeResult) error {
	return r.DB.Create(result).Error
}

// FindOwned 按 (id, challenge_id, user_id) 三元组查找，防止跨用户访问他人的判题任务
func (r *UserChallengeResultRepository) FindOwned(id, challengeID, userID uint) (*model.UserChallengeResult, error) {
	var result model.UserChallengeResult
	err := r.DB.Where("id = ? AND challenge_id = ? AND user_id = ?", id, challengeID, userID).
		First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// DoneChallengeIDs 用户已通过（DONE）的题目 ID 去重集合
func (r *UserChallengeResultRepository) DoneChallengeIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&model.UserChallengeResult{}).
		Distinct("challenge_id").
		Where("user_id = ? AND status = ?", userID, model.ResultDone).
		Pluck("challenge_id", &ids).Error
	return ids, err
}

// AcceptedOutcome DONE 终态的聚合结果
type AcceptedOutcome struct {
	Time   float64 // 所有用例执行时间均值，秒
	Memory int     // 所有用例内存均值，KB
}

// FinalizeAccepted 迁移 PENDING→DONE 并自增 accepted_results 与 total_attempts。
// 返回 false 表示记录已不在 PENDING（输掉了并发竞争），此时不做任何计数器变更。
func (r *UserChallengeResultRepository) FinalizeAccepted(resultID, challengeID uint, outcome AcceptedOutcome) (bool, error) {
	applied := false
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.UserChallengeResult{}).
			Where("id = ? AND status = ?", resultID, model.ResultPending).
			Updates(map[string]interface{}{
				"status":    model.ResultDone,
				"status_id": 3,
				"message":   "Accepted",
				"time":      outcome.Time,
				"memory":    outcome.Memory,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		return tx.Model(&model.Challenge{}).
			Where("id = ?", challengeID).
			UpdateColumns(map[string]interface{}{
				"accepted_results": gorm.Expr("accepted_results + 1"),
				"total_attempts":   gorm.Expr("total_attempts + 1"),
			}).Error
	})
	return applied, err
}

// FailedOutcome FAILED 终态的诊断信息，来自首个失败的判题结果
type FailedOutcome struct {
	StatusID      int
	Message       string // 状态码可读文案
	Stdout        *string
	Stderr        *string
	CompileOutput *string
	TestcaseID    uint
}

// FinalizeFailed 迁移 PENDING→FAILED 并自增 total_attempts（accepted_results 不变）。
// 返回 false 表示记录已不在 PENDING。
func (r *UserChallengeResultRepository) FinalizeFailed(resultID, challengeID uint, outcome FailedOutcome) (bool, error) {
	applied := false
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.UserChallengeResult{}).
			Where("id = ? AND status = ?", resultID, model.ResultPending).
			Updates(map[string]interface{}{
				"status":         model.ResultFailed,
				"status_id":      outcome.StatusID,
				"message":        outcome.Message,
				"stdout":         outcome.Stdout,
				"stderr":         outcome.Stderr,
				"compile_output": outcome.CompileOutput,
				"testcase_id":    outcome.TestcaseID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		return tx.Model(&model.Challenge{}).
			Where("id = ?", challengeID).
			UpdateColumn("total_attempts", gorm.Expr("total_attempts + 1")).Error
	})
	return applied, err
}
