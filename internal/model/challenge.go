package model

type Difficulty string

const (
	Easy   Difficulty = "EASY"
	Medium Difficulty = "MEDIUM"
	Hard   Difficulty = "HARD"
)

// Challenge 编程挑战题目。AcceptedResults/TotalAttempts 只增不减，
// 且只由判题状态机在终态时更新。
// swagger:model Challenge
type Challenge struct {
	BaseModel
	Name            string     `gorm:"size:255;not null" json:"name"`
	Description     string     `gorm:"type:text" json:"description"`
	Difficulty      Difficulty `gorm:"type:enum('EASY','MEDIUM','HARD');default:'EASY'" json:"difficulty"`
	Slug            string     `gorm:"size:300;uniqueIndex" json:"slug"`
	AcceptedResults int        `gorm:"default:0" json:"acceptedResults"`
	TotalAttempts   int        `gorm:"default:0" json:"totalAttempts"`
	TimeLimit       float64    `gorm:"default:1" json:"timeLimit"`    // CPU秒
	SpaceLimit      int        `gorm:"default:128" json:"spaceLimit"` // KB

	Hints            []Hint                `gorm:"foreignKey:ChallengeID" json:"hints,omitempty"`
	Tags             []Tag                 `gorm:"many2many:challenge_tags;" json:"tags,omitempty"`
	TestCases        []TestCase            `gorm:"foreignKey:ChallengeID" json:"testCases,omitempty"`
	ChallengeDetails []ChallengeDetail     `gorm:"foreignKey:ChallengeID" json:"challengeDetails,omitempty"`
	Results          []UserChallengeResult `gorm:"foreignKey:ChallengeID" json:"-"`
}

func (Challenge) TableName() string {
	return "challenges"
}

// Hint 挑战的提示问答
type Hint struct {
	BaseModel
	ChallengeID uint   `gorm:"index;not null" json:"challengeId"`
	Question    string `gorm:"type:text" json:"question"`
	Answer      string `gorm:"type:text" json:"answer"`
}

func (Hint) TableName() string {
	return "hints"
}

// Tag 题目标签
type Tag struct {
	BaseModel
	Name string `gorm:"size:100;uniqueIndex;not null" json:"name"`
}

func (Tag) TableName() string {
	return "tags"
}

// ChallengeDetail 每种语言的模板代码
type ChallengeDetail struct {
	BaseModel
	ChallengeID     uint   `gorm:"index;not null" json:"challengeId"`
	LanguageID      int    `gorm:"not null" json:"languageId"`
	BoilerplateCode string `gorm:"type:text" json:"boilerplateCode"`
}

func (ChallengeDetail) TableName() string {
	return "challenge_details"
}
