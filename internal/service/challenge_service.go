package service

import (
	"code_arena_backend/internal/model"
	"code_arena_backend/internal/repository"
	"code_arena_backend/internal/util"
	"code_arena_backend/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const challengeDetailTTL = 10 * time.Minute

// ChallengeStore 题目的持久化读写
type ChallengeStore interface {
	FindBySlug(slug string) (*model.Challenge, error)
	FindDetailBySlug(slug string) (*model.Challenge, error)
	List(page, limit int) ([]model.Challenge, int64, error)
	Create(challenge *model.Challenge, tagIDs []uint) error
	CountByDifficulty() ([]repository.DifficultyCount, error)
	CountAcceptedByUser(userID uint) ([]repository.DifficultyCount, error)
}

// TestCaseStore 测试用例的持久化读写
type TestCaseStore interface {
	FindByChallenge(challengeID uint) ([]model.TestCase, error)
	CreateBatch(testCases []model.TestCase) error
}

// ResultReader 判题记录的只读视图
type ResultReader interface {
	DoneChallengeIDs(userID uint) ([]uint, error)
}

// ChallengeService 题目管理：创建、详情（带 Redis 缓存）、列表、难度统计
type ChallengeService struct {
	challenges ChallengeStore
	testCases  TestCaseStore
	results    ResultReader
	cache      *redis.Client
}

func NewChallengeService(
	challenges ChallengeStore,
	testCases TestCaseStore,
	results ResultReader,
	cache *redis.Client,
) *ChallengeService {
	return &ChallengeService{
		challenges: challenges,
		testCases:  testCases,
		results:    results,
		cache:      cache,
	}
}

// CreateChallengeInput 创建题目的入参
type CreateChallengeInput struct {
	Name        string                 `json:"name" binding:"required"`
	Description string                 `json:"description"`
	Difficulty  model.Difficulty       `json:"difficulty"`
	TimeLimit   float64                `json:"timeLimit"`
	SpaceLimit  int                    `json:"spaceLimit"`
	TagIDs      []uint                 `json:"tagIds"`
	Hints       []HintInput            `json:"hints"`
	Details     []ChallengeDetailInput `json:"details"`
	TestCases   []TestCaseInput        `json:"testCases"`
}

type HintInput struct {
	Question string `json:"question" binding:"required"`
	Answer   string `json:"answer" binding:"required"`
}

type ChallengeDetailInput struct {
	LanguageID      int    `json:"languageId" binding:"required"`
	BoilerplateCode string `json:"boilerplateCode"`
}

type TestCaseInput struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput" binding:"required"`
	IsSampled      bool   `json:"isSampled"`
}

// CreateChallenge 创建题目，slug 由名称生成
func (s *ChallengeService) CreateChallenge(input *CreateChallengeInput) (*model.Challenge, error) {
	challenge := &model.Challenge{
		Name:        input.Name,
		Description: input.Description,
		Difficulty:  input.Difficulty,
		Slug:        slug.Make(input.Name),
		TimeLimit:   input.TimeLimit,
		SpaceLimit:  input.SpaceLimit,
	}
	if challenge.Difficulty == "" {
		challenge.Difficulty = model.Easy
	}
	if challenge.TimeLimit == 0 {
		challenge.TimeLimit = 1
	}
	if challenge.SpaceLimit == 0 {
		challenge.SpaceLimit = 128
	}
	for _, h := range input.Hints {
		challenge.Hints = append(challenge.Hints, model.Hint{Question: h.Question, Answer: h.Answer})
	}
	for _, d := range input.Details {
		challenge.ChallengeDetails = append(challenge.ChallengeDetails, model.ChallengeDetail{
			LanguageID:      d.LanguageID,
			BoilerplateCode: d.BoilerplateCode,
		})
	}
	for _, tc := range input.TestCases {
		challenge.TestCases = append(challenge.TestCases, model.TestCase{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			IsSampled:      tc.IsSampled,
		})
	}

	if err := s.challenges.Create(challenge, input.TagIDs); err != nil {
		return nil, err
	}
	return challenge, nil
}

// GetDetail 题目详情，带 Redis 旁路缓存；缓存故障降级为直查数据库
func (s *ChallengeService) GetDetail(ctx context.Context, challengeSlug string) (*model.Challenge, error) {
	key := detailCacheKey(challengeSlug)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Result()
		if err == nil {
			var challenge model.Challenge
			if err := json.Unmarshal([]byte(cached), &challenge); err == nil {
				return &challenge, nil
			}
		} else if err != redis.Nil {
			logger.Log.Warn("challenge detail cache read failed", zap.Error(err))
		}
	}

	challenge, err := s.challenges.FindDetailBySlug(challengeSlug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrChallengeNotFound
		}
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(challenge); err == nil {
			if err := s.cache.Set(ctx, key, data, challengeDetailTTL).Err(); err != nil {
				logger.Log.Warn("challenge detail cache write failed", zap.Error(err))
			}
		}
	}
	return challenge, nil
}

// ChallengeSummary 列表项：题目概要加当前用户是否已通过
type ChallengeSummary struct {
	model.Challenge
	Solved bool `json:"solved"`
}

// List 分页列表，userID > 0 时标注该用户已通过的题目
func (s *ChallengeService) List(page, limit int, userID uint) ([]ChallengeSummary, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	challenges, total, err := s.challenges.List(page, limit)
	if err != nil {
		return nil, 0, err
	}

	solved := map[uint]bool{}
	if userID > 0 {
		ids, err := s.results.DoneChallengeIDs(userID)
		if err != nil {
			return nil, 0, err
		}
		for _, id := range ids {
			solved[id] = true
		}
	}

	summaries := make([]ChallengeSummary, len(challenges))
	for i, c := range challenges {
		summaries[i] = ChallengeSummary{Challenge: c, Solved: solved[c.ID]}
	}
	return summaries, total, nil
}

// DifficultyStats 难度分布：全站题目数与用户已通过数
type DifficultyStats struct {
	Total    []repository.DifficultyCount `json:"total"`
	Accepted []repository.DifficultyCount `json:"accepted"`
}

func (s *ChallengeService) GetDifficultyStats(userID uint) (*DifficultyStats, error) {
	total, err := s.challenges.CountByDifficulty()
	if err != nil {
		return nil, err
	}
	accepted, err := s.challenges.CountAcceptedByUser(userID)
	if err != nil {
		return nil, err
	}
	return &DifficultyStats{Total: total, Accepted: accepted}, nil
}

// AddTestCases 追加测试用例并失效详情缓存
func (s *ChallengeService) AddTestCases(ctx context.Context, challengeSlug string, inputs []TestCaseInput) ([]model.TestCase, error) {
	challenge, err := s.challenges.FindBySlug(challengeSlug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrChallengeNotFound
		}
		return nil, err
	}

	testCases := make([]model.TestCase, len(inputs))
	for i, in := range inputs {
		testCases[i] = model.TestCase{
			ChallengeID:    challenge.ID,
			Input:          in.Input,
			ExpectedOutput: in.ExpectedOutput,
			IsSampled:      in.IsSampled,
		}
	}
	if err := s.testCases.CreateBatch(testCases); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, detailCacheKey(challengeSlug)).Err(); err != nil {
			logger.Log.Warn("challenge detail cache invalidation failed", zap.Error(err))
		}
	}
	return testCases, nil
}

// ListTestCases 列出题目的测试用例；includeHidden=false 时只返回示例用例
func (s *ChallengeService) ListTestCases(challengeSlug string, includeHidden bool) ([]model.TestCase, error) {
	challenge, err := s.challenges.FindBySlug(challengeSlug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrChallengeNotFound
		}
		return nil, err
	}

	testCases, err := s.testCases.FindByChallenge(challenge.ID)
	if err != nil {
		return nil, err
	}
	if includeHidden {
		return testCases, nil
	}

	sampled := make([]model.TestCase, 0, len(testCases))
	for _, tc := range testCases {
		if tc.IsSampled {
			sampled = append(sampled, tc)
		}
	}
	return sampled, nil
}

func detailCacheKey(challengeSlug string) string {
	return fmt.Sprintf("challenge:detail:%s", challengeSlug)
}
