package model

type ResultStatus string

const (
	ResultPending ResultStatus = "PENDING"
	ResultDone    ResultStatus = "DONE"
	ResultFailed  ResultStatus = "FAILED"
)

// UserChallengeResult 一次正式提交的持久化判题记录。
// 生命周期：PENDING → DONE | FAILED，终态后不再变更；
// 失败诊断字段（Stderr/Stdout/CompileOutput/Message/TestcaseID）仅 FAILED 填充，
// Time/Memory（均值）仅 DONE 填充。
// swagger:model UserChallengeResult
type UserChallengeResult struct {
	BaseModel
	UserID      uint         `gorm:"index;not null" json:"userId"`
	ChallengeID uint         `gorm:"index;not null" json:"challengeId"`
	Code        string       `gorm:"type:text" json:"code"`
	LanguageID  int          `json:"languageId"`
	Status      ResultStatus `gorm:"type:enum('PENDING','DONE','FAILED');default:'PENDING'" json:"status"`
	StatusID    int          `json:"statusId"` // 判题引擎最后已知的状态码
	Message     string       `gorm:"size:100" json:"message"`
	Time        *float64     `gorm:"type:decimal(10,3)" json:"time,omitempty"`
	Memory      *int         `json:"memory,omitempty"`
	Stderr      *string      `gorm:"type:text" json:"stderr,omitempty"`
	Stdout      *string      `gorm:"type:text" json:"stdout,omitempty"`
	CompileOut  *string      `gorm:"type:text;column:compile_output" json:"compileOutput,omitempty"`
	TestcaseID  *uint        `json:"testcaseId,omitempty"` // 失败的测试用例

	ErrorTestCase *TestCase `gorm:"foreignKey:TestcaseID" json:"errorTestCase,omitempty"`
}

func (UserChallengeResult) TableName() string {
	return "user_challenge_results"
}
