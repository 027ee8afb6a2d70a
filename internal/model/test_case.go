package model

// TestCase 测试用例。批量判题时始终按 ID 升序处理，
// 该顺序是批次位置与返回 token 之间的关联键。
// swagger:model TestCase
type TestCase struct {
	BaseModel
	ChallengeID    uint   `gorm:"index;not null" json:"challengeId"`
	Input          string `gorm:"type:text" json:"input"`
	ExpectedOutput string `gorm:"type:text" json:"expectedOutput"`
	IsSampled      bool   `gorm:"default:false" json:"isSampled"` // 提交前对用户可见
}

func (TestCase) TableName() string {
	return "test_cases"
}
