package model

// TodoChallenge 用户的挑战待办清单
// swagger:model TodoChallenge
type TodoChallenge struct {
	BaseModel
	UserID      uint `gorm:"index;not null" json:"userId"`
	ChallengeID uint `gorm:"index;not null" json:"challengeId"`
	IsDone      bool `gorm:"default:false" json:"isDone"`

	Challenge *Challenge `gorm:"foreignKey:ChallengeID" json:"challenge,omitempty"`
}

func (TodoChallenge) TableName() string {
	return "todo_challenges"
}
