package service

import (
	"code_arena_backend/internal/judge0"
	"code_arena_backend/internal/model"
	"code_arena_backend/internal/repository"
	"code_arena_backend/internal/util"
	"code_arena_backend/pkg/logger"
	"code_arena_backend/pkg/monitoring"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// JudgeDispatcher 判题引擎批量接口
type JudgeDispatcher interface {
	SubmitBatch(ctx context.Context, requests []judge0.SubmissionRequest) ([]string, error)
	FetchBatch(ctx context.Context, tokens []string) ([]judge0.Submission, error)
}

// ChallengeFinder 按 slug 加载题目
type ChallengeFinder interface {
	FindBySlug(slug string) (*model.Challenge, error)
}

// TestCaseFinder 按 ID 升序加载测试用例
type TestCaseFinder interface {
	FindByIDs(ids []uint) ([]model.TestCase, error)
	FindByChallenge(challengeID uint) ([]model.TestCase, error)
}

// ResultStore 判题记录的持久化，终态迁移必须是条件更新（至多生效一次）
type ResultStore interface {
	Create(result *model.UserChallengeResult) error
	FindOwned(id, challengeID, userID uint) (*model.UserChallengeResult, error)
	FinalizeAccepted(resultID, challengeID uint, outcome repository.AcceptedOutcome) (bool, error)
	FinalizeFailed(resultID, challengeID uint, outcome repository.FailedOutcome) (bool, error)
}

// TodoNotifier 通过题目后的待办清单联动，尽力而为
type TodoNotifier interface {
	MarkDoneIfExists(challengeID, userID uint) error
}

// CodeArchiver 通过题目后的代码归档，尽力而为
type CodeArchiver interface {
	ArchiveAcceptedCode(userID, challengeID uint, languageID int, code string) error
}

// JudgeService 判题流水线：构建批次、分发到判题引擎、轮询聚合结果。
// 服务本身无状态，一次 submit 与后续 poll 之间的连续性完全由持久化记录
// 和引擎侧的 token 状态重建。
type JudgeService struct {
	challenges ChallengeFinder
	testCases  TestCaseFinder
	results    ResultStore
	todos      TodoNotifier
	archiver   CodeArchiver
	judge      JudgeDispatcher
}

func NewJudgeService(
	challenges ChallengeFinder,
	testCases TestCaseFinder,
	results ResultStore,
	todos TodoNotifier,
	archiver CodeArchiver,
	judge JudgeDispatcher,
) *JudgeService {
	return &JudgeService{
		challenges: challenges,
		testCases:  testCases,
		results:    results,
		todos:      todos,
		archiver:   archiver,
		judge:      judge,
	}
}

// TokenPair 一个测试用例与引擎返回 token 的对应关系，仅在单次运行/提交周期内有效
type TokenPair struct {
	Token      string `json:"token" binding:"required"`
	TestCaseID uint   `json:"testCaseId" binding:"required"`
}

// SubmissionResult 解码后的单条判题结果
type SubmissionResult struct {
	Token         string  `json:"token"`
	TestCaseID    uint    `json:"testCaseId"`
	StatusID      int     `json:"statusId"`
	Status        string  `json:"status"`
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compileOutput"`
	Message       *string `json:"message"`
	Time          string  `json:"time"`
	Memory        float64 `json:"memory"`
}

// PollStatus 轮询的三种出口
type PollStatus int

const (
	PollPending PollStatus = iota // 批次尚有排队/执行中的用例，稍后重试，不是错误
	PollError                     // 存在失败用例
	PollSuccess                   // 全部通过
)

// RunPollResult 试运行轮询的聚合结果。
// 诊断性失败只带一条代表性结果（Submission+ErrorTestCase），
// 答案错误与成功带全量结果（Submissions）。
type RunPollResult struct {
	Status        PollStatus
	Error         string
	Submission    *SubmissionResult
	ErrorTestCase *model.TestCase
	Submissions   []SubmissionResult
}

// SubmitPollResult 正式提交轮询的聚合结果
type SubmitPollResult struct {
	Status        PollStatus
	Error         string
	Submission    *SubmissionResult
	ErrorTestCase *model.TestCase
	AverageTime   float64 // 秒，保留3位小数
	AverageMemory int     // KB，四舍五入到整数
}

// SubmitReceipt 正式提交的回执
type SubmitReceipt struct {
	Pairs           []TokenPair `json:"data"`
	UserChallengeID uint        `json:"userChallengeId"`
}

// StartRun 试运行：只跑指定的测试用例，不落库
func (s *JudgeService) StartRun(ctx context.Context, challengeSlug, code string, languageID int, testCaseIDs []uint) ([]TokenPair, error) {
	challenge, err := s.loadChallenge(challengeSlug)
	if err != nil {
		return nil, err
	}
	if !util.SupportedLanguageID(languageID) {
		return nil, util.ErrUnsupportedLanguage
	}

	// 容忍部分 ID 不存在，结果集为空才报错
	testCases, err := s.testCases.FindByIDs(testCaseIDs)
	if err != nil {
		return nil, err
	}

	return s.dispatch(ctx, challenge, testCases, code, languageID, "run")
}

// Submit 正式提交：跑全部用例并创建 PENDING 判题记录。
// 分发与建档视为一个逻辑单元：分发失败则不落任何记录。
func (s *JudgeService) Submit(ctx context.Context, challengeSlug, code string, languageID int, userID uint) (*SubmitReceipt, error) {
	challenge, err := s.loadChallenge(challengeSlug)
	if err != nil {
		return nil, err
	}
	if !util.SupportedLanguageID(languageID) {
		return nil, util.ErrUnsupportedLanguage
	}

	testCases, err := s.testCases.FindByChallenge(challenge.ID)
	if err != nil {
		return nil, err
	}

	pairs, err := s.dispatch(ctx, challenge, testCases, code, languageID, "submit")
	if err != nil {
		return nil, err
	}

	result := &model.UserChallengeResult{
		UserID:      userID,
		ChallengeID: challenge.ID,
		Code:        code,
		LanguageID:  languageID,
		Status:      model.ResultPending,
		StatusID:    int(judge0.StatusInQueue),
	}
	if err := s.results.Create(result); err != nil {
		return nil, err
	}

	return &SubmitReceipt{Pairs: pairs, UserChallengeID: result.ID}, nil
}

// dispatch 构建批次并分发，返回 token 与测试用例按升序 ID 的配对
func (s *JudgeService) dispatch(ctx context.Context, challenge *model.Challenge, testCases []model.TestCase, code string, languageID int, mode string) ([]TokenPair, error) {
	requests, err := buildSubmissions(challenge, testCases, code, languageID)
	if err != nil {
		return nil, err
	}

	tokens, err := s.judge.SubmitBatch(ctx, requests)
	if err != nil {
		logger.Log.Error("judge batch dispatch failed",
			zap.String("challenge", challenge.Slug),
			zap.String("mode", mode),
			zap.Error(err))
		return nil, err
	}
	monitoring.JudgeBatchCounter.WithLabelValues(mode).Inc()

	pairs := make([]TokenPair, len(testCases))
	for i, tc := range testCases {
		pairs[i] = TokenPair{Token: tokens[i], TestCaseID: tc.ID}
	}
	return pairs, nil
}

// buildSubmissions 把测试用例转成判题请求，升序 ID 排列。
// 不变量：请求数 == 用例数，request[i] 对应 testCases[i]。
func buildSubmissions(challenge *model.Challenge, testCases []model.TestCase, code string, languageID int) ([]judge0.SubmissionRequest, error) {
	if len(testCases) == 0 {
		return nil, util.ErrNoTestCases
	}

	sort.Slice(testCases, func(i, j int) bool { return testCases[i].ID < testCases[j].ID })

	requests := make([]judge0.SubmissionRequest, len(testCases))
	for i, tc := range testCases {
		requests[i] = judge0.SubmissionRequest{
			SourceCode:     code,
			Stdin:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			LanguageID:     languageID,
			CPUTimeLimit:   challenge.TimeLimit,
			MemoryLimit:    challenge.SpaceLimit,
		}
	}
	return requests, nil
}

// PollRun 试运行轮询：聚合分类但不落库
func (s *JudgeService) PollRun(ctx context.Context, entries []TokenPair) (*RunPollResult, error) {
	if len(entries) == 0 {
		return nil, util.ErrNoSubmissions
	}

	// 按测试用例 ID 排序，保证输出顺序确定
	sort.Slice(entries, func(i, j int) bool { return entries[i].TestCaseID < entries[j].TestCaseID })

	submissions, byToken, err := s.fetchCorrelated(ctx, entries)
	if err != nil {
		return nil, err
	}
	if anyPending(submissions) {
		return &RunPollResult{Status: PollPending}, nil
	}

	testCases, err := s.loadEntryTestCases(entries)
	if err != nil {
		return nil, err
	}

	// 先扫诊断性失败（编译/运行时/内部/格式错误），按提交列表顺序取第一条，
	// 而不是按测试用例 ID 顺序
	for _, sub := range submissions {
		if judge0.Classify(sub.Status) == judge0.VerdictDiagnosticFailure {
			tc := testCases[byToken[sub.Token]]
			return &RunPollResult{
				Status:        PollError,
				Error:         sub.Status.Description(),
				Submission:    decodeSubmission(sub, byToken[sub.Token]),
				ErrorTestCase: tc,
			}, nil
		}
	}

	decoded := make([]SubmissionResult, 0, len(entries))
	for _, entry := range entries {
		sub := findByToken(submissions, entry.Token)
		decoded = append(decoded, *decodeSubmission(*sub, entry.TestCaseID))
	}

	for _, sub := range submissions {
		if sub.Status == judge0.StatusWrongAnswer {
			return &RunPollResult{
				Status:      PollError,
				Error:       judge0.StatusWrongAnswer.Description(),
				Submissions: decoded,
			}, nil
		}
	}

	return &RunPollResult{Status: PollSuccess, Submissions: decoded}, nil
}

// PollSubmit 正式提交轮询：全部终态后驱动判题记录迁移到 DONE/FAILED，
// 记录迁移和题目计数器自增在同一事务内、且至多执行一次；
// 输掉并发竞争或重复轮询已终态的记录时，返回已存储的结果，不重复计数。
func (s *JudgeService) PollSubmit(ctx context.Context, challengeSlug string, userChallengeID uint, entries []TokenPair, userID uint) (*SubmitPollResult, error) {
	challenge, err := s.loadChallenge(challengeSlug)
	if err != nil {
		return nil, err
	}

	// 所有权校验：记录必须属于该题且属于当前用户
	record, err := s.results.FindOwned(userChallengeID, challenge.ID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSubmissionNotFound
		}
		return nil, err
	}

	if record.Status != model.ResultPending {
		return s.storedResult(record)
	}

	if len(entries) == 0 {
		return nil, util.ErrNoSubmissions
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].TestCaseID < entries[j].TestCaseID })

	submissions, byToken, err := s.fetchCorrelated(ctx, entries)
	if err != nil {
		return nil, err
	}
	if anyPending(submissions) {
		return &SubmitPollResult{Status: PollPending}, nil
	}

	// 提交路径上答案错误和诊断性失败都算 FAILED，按提交列表顺序取第一条
	for _, sub := range submissions {
		verdict := judge0.Classify(sub.Status)
		if verdict == judge0.VerdictWrongAnswer || verdict == judge0.VerdictDiagnosticFailure {
			return s.finalizeFailed(challenge, record, sub, byToken, userID)
		}
	}

	return s.finalizeAccepted(challenge, record, submissions, userID)
}

func (s *JudgeService) finalizeFailed(challenge *model.Challenge, record *model.UserChallengeResult, sub judge0.Submission, byToken map[string]uint, userID uint) (*SubmitPollResult, error) {
	testCaseID := byToken[sub.Token]
	decoded := decodeSubmission(sub, testCaseID)

	applied, err := s.results.FinalizeFailed(record.ID, challenge.ID, repository.FailedOutcome{
		StatusID:      int(sub.Status),
		Message:       sub.Status.Description(),
		Stdout:        sub.Stdout,
		Stderr:        sub.Stderr,
		CompileOutput: sub.CompileOutput,
		TestcaseID:    testCaseID,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// 另一个轮询抢先完成了迁移，返回已存储的终态
		return s.reloadStored(record.ID, challenge.ID, userID)
	}
	monitoring.JudgeVerdictCounter.WithLabelValues("failed").Inc()

	testCases, err := s.testCases.FindByIDs([]uint{testCaseID})
	if err != nil {
		return nil, err
	}
	var errorTestCase *model.TestCase
	if len(testCases) > 0 {
		errorTestCase = &testCases[0]
	}

	return &SubmitPollResult{
		Status:        PollError,
		Error:         sub.Status.Description(),
		Submission:    decoded,
		ErrorTestCase: errorTestCase,
	}, nil
}

func (s *JudgeService) finalizeAccepted(challenge *model.Challenge, record *model.UserChallengeResult, submissions []judge0.Submission, userID uint) (*SubmitPollResult, error) {
	times := make([]float64, 0, len(submissions))
	memories := make([]float64, 0, len(submissions))
	for _, sub := range submissions {
		t, err := strconv.ParseFloat(sub.Time, 64)
		if err != nil {
			logger.Log.Warn("unparsable execution time from judge engine",
				zap.String("token", sub.Token), zap.String("time", sub.Time))
			t = 0
		}
		times = append(times, t)
		memories = append(memories, sub.Memory)
	}

	outcome := repository.AcceptedOutcome{
		Time:   round3(mean(times)),
		Memory: int(math.Round(mean(memories))),
	}

	applied, err := s.results.FinalizeAccepted(record.ID, challenge.ID, outcome)
	if err != nil {
		return nil, err
	}
	if !applied {
		return s.reloadStored(record.ID, challenge.ID, userID)
	}
	monitoring.JudgeVerdictCounter.WithLabelValues("done").Inc()

	// 待办联动与代码归档都是尽力而为的副作用，不属于判题不变量
	if s.todos != nil {
		go func() {
			if err := s.todos.MarkDoneIfExists(challenge.ID, userID); err != nil {
				logger.Log.Warn("todo notification failed", zap.Error(err))
			}
		}()
	}
	if s.archiver != nil {
		go func() {
			if err := s.archiver.ArchiveAcceptedCode(userID, challenge.ID, record.LanguageID, record.Code); err != nil {
				logger.Log.Warn("code archive failed", zap.Error(err))
			}
		}()
	}

	return &SubmitPollResult{
		Status:        PollSuccess,
		AverageTime:   outcome.Time,
		AverageMemory: outcome.Memory,
	}, nil
}

// storedResult 把已终态的记录还原为轮询响应（幂等重放，零副作用）
func (s *JudgeService) storedResult(record *model.UserChallengeResult) (*SubmitPollResult, error) {
	switch record.Status {
	case model.ResultDone:
		result := &SubmitPollResult{Status: PollSuccess}
		if record.Time != nil {
			result.AverageTime = *record.Time
		}
		if record.Memory != nil {
			result.AverageMemory = *record.Memory
		}
		return result, nil
	case model.ResultFailed:
		result := &SubmitPollResult{
			Status: PollError,
			Error:  record.Message,
			Submission: &SubmissionResult{
				StatusID:      record.StatusID,
				Status:        judge0.Status(record.StatusID).Description(),
				Stdout:        record.Stdout,
				Stderr:        record.Stderr,
				CompileOutput: record.CompileOut,
			},
		}
		if record.TestcaseID != nil {
			result.Submission.TestCaseID = *record.TestcaseID
			testCases, err := s.testCases.FindByIDs([]uint{*record.TestcaseID})
			if err != nil {
				return nil, err
			}
			if len(testCases) > 0 {
				result.ErrorTestCase = &testCases[0]
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unexpected record status %q", record.Status)
	}
}

func (s *JudgeService) reloadStored(recordID, challengeID, userID uint) (*SubmitPollResult, error) {
	record, err := s.results.FindOwned(recordID, challengeID, userID)
	if err != nil {
		return nil, err
	}
	return s.storedResult(record)
}

// fetchCorrelated 拉取批次状态并按 token 关联回测试用例。
// 引擎不保证返回顺序，绝不能按位置关联。
func (s *JudgeService) fetchCorrelated(ctx context.Context, entries []TokenPair) ([]judge0.Submission, map[string]uint, error) {
	tokens := make([]string, len(entries))
	byToken := make(map[string]uint, len(entries))
	for i, entry := range entries {
		tokens[i] = entry.Token
		byToken[entry.Token] = entry.TestCaseID
	}

	submissions, err := s.judge.FetchBatch(ctx, tokens)
	if err != nil {
		return nil, nil, err
	}

	for _, sub := range submissions {
		if _, ok := byToken[sub.Token]; !ok {
			return nil, nil, fmt.Errorf("judge engine returned unknown token %q", sub.Token)
		}
	}
	if len(submissions) != len(entries) {
		return nil, nil, fmt.Errorf("judge engine returned %d results for %d tokens", len(submissions), len(entries))
	}
	return submissions, byToken, nil
}

func (s *JudgeService) loadChallenge(slug string) (*model.Challenge, error) {
	challenge, err := s.challenges.FindBySlug(slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrChallengeNotFound
		}
		return nil, err
	}
	return challenge, nil
}

func (s *JudgeService) loadEntryTestCases(entries []TokenPair) (map[uint]*model.TestCase, error) {
	ids := make([]uint, len(entries))
	for i, entry := range entries {
		ids[i] = entry.TestCaseID
	}
	testCases, err := s.testCases.FindByIDs(ids)
	if err != nil {
		return nil, err
	}
	indexed := make(map[uint]*model.TestCase, len(testCases))
	for i := range testCases {
		indexed[testCases[i].ID] = &testCases[i]
	}
	return indexed, nil
}

func anyPending(submissions []judge0.Submission) bool {
	for _, sub := range submissions {
		if !sub.Status.Terminal() {
			return true
		}
	}
	return false
}

func findByToken(submissions []judge0.Submission, token string) *judge0.Submission {
	for i := range submissions {
		if submissions[i].Token == token {
			return &submissions[i]
		}
	}
	return nil
}

func decodeSubmission(sub judge0.Submission, testCaseID uint) *SubmissionResult {
	return &SubmissionResult{
		Token:         sub.Token,
		TestCaseID:    testCaseID,
		StatusID:      int(sub.Status),
		Status:        sub.Status.Description(),
		Stdout:        sub.Stdout,
		Stderr:        sub.Stderr,
		CompileOutput: sub.CompileOutput,
		Message:       sub.Message,
		Time:          sub.Time,
		Memory:        sub.Memory,
	}
}

// mean 算术平均。调用方保证所有状态已终态且非失败，长度必然 ≥1，
// 空切片属于编程错误
func mean(values []float64) float64 {
	if len(values) == 0 {
		panic("mean: empty input")
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// round3 保留3位小数，逢5远离零
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
