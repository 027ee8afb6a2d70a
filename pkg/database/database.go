package database

import (
	"code_arena_backend/internal/config"
	"code_arena_backend/internal/model"
	"fmt"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	err = db.AutoMigrate(
		&model.User{},
		&model.Challenge{},
		&model.Hint{},
		&model.Tag{},
		&model.ChallengeDetail{},
		&model.TestCase{},
		&model.UserChallengeResult{},
		&model.TodoChallenge{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	// 默认题目标签
	var tagCount int64
	db.Model(&model.Tag{}).Count(&tagCount)
	if tagCount == 0 {
		defaultTags := []model.Tag{
			{Name: "Array"},
			{Name: "String"},
			{Name: "Hash Table"},
			{Name: "Dynamic Programming"},
			{Name: "Sorting"},
			{Name: "Binary Search"},
			{Name: "Graph"},
		}
		for _, t := range defaultTags {
			db.Create(&t)
		}
	}

	return db, nil
}
