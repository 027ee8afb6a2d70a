package service

import (
	"code_arena_backend/internal/judge0"
	"code_arena_backend/internal/model"
	"code_arena_backend/internal/repository"
	"code_arena_backend/internal/util"
	"code_arena_backend/pkg/logger"
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	m.Run()
}

// ---- fakes ----

type fakeDispatcher struct {
	mu        sync.Mutex
	submitted [][]judge0.SubmissionRequest
	tokens    []string
	submitErr error
	fetch     func(tokens []string) ([]judge0.Submission, error)
}

func (f *fakeDispatcher) SubmitBatch(_ context.Context, requests []judge0.SubmissionRequest) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, requests)
	return f.tokens[:len(requests)], nil
}

func (f *fakeDispatcher) FetchBatch(_ context.Context, tokens []string) ([]judge0.Submission, error) {
	return f.fetch(tokens)
}

type fakeChallenges struct {
	bySlug map[string]*model.Challenge
}

func (f *fakeChallenges) FindBySlug(slug string) (*model.Challenge, error) {
	if c, ok := f.bySlug[slug]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeTestCases struct {
	cases []model.TestCase
}

func (f *fakeTestCases) FindByIDs(ids []uint) ([]model.TestCase, error) {
	wanted := map[uint]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	var out []model.TestCase
	for _, tc := range f.cases {
		if wanted[tc.ID] {
			out = append(out, tc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTestCases) FindByChallenge(challengeID uint) ([]model.TestCase, error) {
	var out []model.TestCase
	for _, tc := range f.cases {
		if tc.ChallengeID == challengeID {
			out = append(out, tc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// fakeResults 模拟条件更新语义：只有 PENDING 的记录才能迁移，
// loseRace 为 true 时模拟另一个轮询抢先完成迁移。
type fakeResults struct {
	mu              sync.Mutex
	nextID          uint
	records         map[uint]*model.UserChallengeResult
	acceptedResults int
	totalAttempts   int
	finalizeCalls   int
	loseRace        bool
}

func newFakeResults() *fakeResults {
	return &fakeResults{nextID: 1, records: map[uint]*model.UserChallengeResult{}}
}

func (f *fakeResults) Create(result *model.UserChallengeResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	result.ID = f.nextID
	f.nextID++
	f.records[result.ID] = result
	return nil
}

func (f *fakeResults) FindOwned(id, challengeID, userID uint) (*model.UserChallengeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok || r.ChallengeID != challengeID || r.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *r
	return &copied, nil
}

func (f *fakeResults) FinalizeAccepted(resultID, challengeID uint, outcome repository.AcceptedOutcome) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[resultID]
	if !ok {
		return false, nil
	}
	if f.loseRace && r.Status == model.ResultPending {
		otherTime, otherMemory := 0.5, 777
		r.Status = model.ResultDone
		r.Time = &otherTime
		r.Memory = &otherMemory
		return false, nil
	}
	if r.Status != model.ResultPending {
		return false, nil
	}
	r.Status = model.ResultDone
	r.StatusID = 3
	r.Message = "Accepted"
	r.Time = &outcome.Time
	r.Memory = &outcome.Memory
	f.acceptedResults++
	f.totalAttempts++
	f.finalizeCalls++
	return true, nil
}

func (f *fakeResults) FinalizeFailed(resultID, challengeID uint, outcome repository.FailedOutcome) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[resultID]
	if !ok || r.Status != model.ResultPending {
		return false, nil
	}
	r.Status = model.ResultFailed
	r.StatusID = outcome.StatusID
	r.Message = outcome.Message
	r.Stdout = outcome.Stdout
	r.Stderr = outcome.Stderr
	r.CompileOut = outcome.CompileOutput
	tcID := outcome.TestcaseID
	r.TestcaseID = &tcID
	f.totalAttempts++
	f.finalizeCalls++
	return true, nil
}

type fakeTodos struct {
	notified chan uint
}

func (f *fakeTodos) MarkDoneIfExists(challengeID, userID uint) error {
	f.notified <- challengeID
	return nil
}

type fakeArchiver struct {
	archived chan string
}

func (f *fakeArchiver) ArchiveAcceptedCode(userID, challengeID uint, languageID int, code string) error {
	f.archived <- code
	return nil
}

// ---- fixtures ----

func strptr(s string) *string { return &s }

func terminal(token string, status judge0.Status, execTime string, memory float64) judge0.Submission {
	return judge0.Submission{Token: token, Status: status, Time: execTime, Memory: memory}
}

type judgeFixture struct {
	svc        *JudgeService
	challenges *fakeChallenges
	testCases  *fakeTestCases
	results    *fakeResults
	dispatcher *fakeDispatcher
	todos      *fakeTodos
	archiver   *fakeArchiver
}

func newJudgeFixture() *judgeFixture {
	challenge := &model.Challenge{
		Name:       "Two Sum",
		Slug:       "two-sum",
		TimeLimit:  2,
		SpaceLimit: 128000,
	}
	challenge.ID = 10

	f := &judgeFixture{
		challenges: &fakeChallenges{bySlug: map[string]*model.Challenge{"two-sum": challenge}},
		testCases: &fakeTestCases{cases: []model.TestCase{
			{BaseModel: model.BaseModel{ID: 1}, ChallengeID: 10, Input: "1 2", ExpectedOutput: "3"},
			{BaseModel: model.BaseModel{ID: 2}, ChallengeID: 10, Input: "4 5", ExpectedOutput: "9"},
		}},
		results:    newFakeResults(),
		dispatcher: &fakeDispatcher{tokens: []string{"tok-1", "tok-2", "tok-3"}},
		todos:      &fakeTodos{notified: make(chan uint, 1)},
		archiver:   &fakeArchiver{archived: make(chan string, 1)},
	}
	f.svc = NewJudgeService(f.challenges, f.testCases, f.results, f.todos, f.archiver, f.dispatcher)
	return f
}

// ---- run mode ----

func TestStartRunBuildsBatchInAscendingOrder(t *testing.T) {
	f := newJudgeFixture()

	// 故意乱序传入
	pairs, err := f.svc.StartRun(context.Background(), "two-sum", "print(1)", 71, []uint{2, 1})
	require.NoError(t, err)

	require.Len(t, f.dispatcher.submitted, 1)
	requests := f.dispatcher.submitted[0]
	require.Len(t, requests, 2)
	assert.Equal(t, "1 2", requests[0].Stdin)
	assert.Equal(t, "3", requests[0].ExpectedOutput)
	assert.Equal(t, "4 5", requests[1].Stdin)
	assert.Equal(t, float64(2), requests[0].CPUTimeLimit)
	assert.Equal(t, 128000, requests[0].MemoryLimit)
	assert.Equal(t, 71, requests[0].LanguageID)

	// token 按请求顺序配对回升序的用例
	assert.Equal(t, []TokenPair{{Token: "tok-1", TestCaseID: 1}, {Token: "tok-2", TestCaseID: 2}}, pairs)
}

func TestStartRunValidation(t *testing.T) {
	f := newJudgeFixture()

	_, err := f.svc.StartRun(context.Background(), "missing", "code", 71, []uint{1})
	assert.ErrorIs(t, err, util.ErrChallengeNotFound)

	_, err = f.svc.StartRun(context.Background(), "two-sum", "code", 999, []uint{1})
	assert.ErrorIs(t, err, util.ErrUnsupportedLanguage)

	// 不存在的用例 ID 被容忍，但结果集为空时报错
	_, err = f.svc.StartRun(context.Background(), "two-sum", "code", 71, []uint{42})
	assert.ErrorIs(t, err, util.ErrNoTestCases)
	assert.Empty(t, f.dispatcher.submitted)
}

func TestPollRunPendingWhileAnyNonTerminal(t *testing.T) {
	f := newJudgeFixture()
	f.dispatcher.fetch = func([]string) ([]judge0.Submission, error) {
		return []judge0.Submission{
			terminal("tok-1", judge0.StatusAccepted, "0.01", 1000),
			{Token: "tok-2", Status: judge0.StatusProcessing},
		}, nil
	}

	result, err := f.svc.PollRun(context.Background(), []TokenPair{{"tok-1", 1}, {"tok-2", 2}})
	require.NoError(t, err)
	assert.Equal(t, PollPending, result.Status)
}

func TestPollRunDiagnosticFailureReturnsFirstByListOrder(t *testing.T) {
	f := newJudgeFixture()
	compileOut := strptr("syntax error")
	// 引擎乱序返回，首个失败按返回列表顺序取，归属按 token 关联
	f.dispatcher.fetch = func([]string) ([]judge0.Submission, error) {
		return []judge0.Submission{
			terminal("tok-1", judge0.StatusAccepted, "0.01", 1000),
			{Token: "tok-2", Status: judge0.StatusCompilationError, CompileOutput: compileOut},
		}, nil
	}

	result, err := f.svc.PollRun(context.Background(), []TokenPair{{"tok-2", 2}, {"tok-1", 1}})
	require.NoError(t, err)
	assert.Equal(t, PollError, result.Status)
	assert.Equal(t, "Compilation Error", result.Error)
	require.NotNil(t, result.Submission)
	assert.Equal(t, uint(2), result.Submission.TestCaseID)
	assert.Equal(t, 6, result.Submission.StatusID)
	assert.Equal(t, compileOut, result.Submission.CompileOutput)
	require.NotNil(t, result.ErrorTestCase)
	assert.Equal(t, uint(2), result.ErrorTestCase.ID)
	assert.Empty(t, result.Submissions)
}

func TestPollRunWrongAnswerReturnsFullSet(t *testing.T) {
	f := newJudgeFixture()
	f.dispatcher.fetch = func([]string) ([]judge0.Submission, error) {
		return []judge0.Submission{
			terminal("tok-2", judge0.StatusWrongAnswer, "0.02", 1200),
			terminal("tok-1", judge0.StatusAccepted, "0.01", 1000),
		}, nil
	}

	result, err := f.svc.PollRun(context.Background(), []TokenPair{{"tok-1", 1}, {"tok-2", 2}})
	require.NoError(t, err)
	assert.Equal(t, PollError, result.Status)
	assert.Equal(t, "Wrong Answer", result.Error)
	assert.Nil(t, result.Submission)
	require.Len(t, result.Submissions, 2)
	// 全量结果按用例 ID 升序
	assert.Equal(t, uint(1), result.Submissions[0].TestCaseID)
	assert.Equal(t, "Accepted", result.Submissions[0].Status)
	assert.Equal(t, uint(2), result.Submissions[1].TestCaseID)
	assert.Equal(t, "Wrong Answer", result.Submissions[1].Status)
}

func TestPollRunSuccess(t *testing.T) {
	f := newJudgeFixture()
	f.dispatcher.fetch = func([]string) ([]judge0.Submission, error) {
		return []judge0.Submission{
			terminal("tok-2", judge0.StatusAccepted, "0.02", 1200),
			terminal("tok-1", judge0.StatusAccepted, "0.01", 1000),
		}, nil
	}

	result, err := f.svc.PollRun(context.Background(), []TokenPair{{"tok-2", 2}, {"tok-1", 1}})
	require.NoError(t, err)
	assert.Equal(t, PollSuccess, result.Status)
	require.Len(t, result.Submissions, 2)
	assert.Equal(t, "tok-1", result.Submissions[0].Token)
	assert.Equal(t, "tok-2", result.Submissions[1].Token)
}

func TestPollRunEmptySet(t *testing.T) {
	f := newJudgeFixture()
	_, err := f.svc.PollRun(context.Background(), nil)
	assert.ErrorIs(t, err, util.ErrNoSubmissions)
}

// ---- submit mode ----

func TestSubmitCreatesPendingRecord(t *testing.T) {
	f := newJudgeFixture()

	receipt, err := f.svc.Submit(context.Background(), "two-sum", "print(1)", 71, 5)
	require.NoError(t, err)
	require.Len(t, receipt.Pairs, 2)
	assert.NotZero(t, receipt.UserChallengeID)

	record, err := f.results.FindOwned(receipt.UserChallengeID, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, model.ResultPending, record.Status)
	assert.Equal(t, 1, record.StatusID) // In Queue
	assert.Equal(t, "print(1)", record.Code)
	assert.Equal(t, 71, record.LanguageID)
}

func TestSubmitDispatchFailureLeavesNoRecord(t *testing.T) {
	f := newJudgeFixture()
	f.dispatcher.submitErr = errors.New("engine down")

	_, err := f.svc.Submit(context.Background(), "two-sum", "print(1)", 71, 5)
	require.Error(t, err)
	assert.Empty(t, f.results.records)
}

func TestPollSubmitLifecycle(t *testing.T) {
	f := newJudgeFixture()

	receipt, err := f.svc.Submit(context.Background(), "two-sum", "print(1)", 71, 5)
	require.NoError(t, err)

	// 第一次轮询：还在执行中
	f.dispatcher.fetch = func([]string) ([]judge0.Submission, error) {
		return []judge0.Submission{
			{Token: "tok-1", Status: judge0.StatusInQueue},
			{Token: "tok-2", Status: judge0.StatusProcessing},
		}, nil
	}
	result, err := f.svc.PollSubmit(context.Background(), "two-sum", receipt.UserChallengeID, receipt.Pairs, 5)
	require.NoError(t, err)
	assert.Equal(t, PollPending, result.Status)

	record, _ := f.results.FindOwned(receipt.UserChallengeID, 10, 5)
	assert.Equal(t, model.ResultPending, record.Status)

	// 第二次轮询：全部通过
	f.dispatcher.fetch = func([]string) ([]judge0.Submission, error) {
		return []judge0.Submission{
			terminal("tok-1", judge0.StatusAccepted, "0.01", 1000),
			terminal("tok-2", judge0.StatusAccepted, "0.02", 1200),
		}, nil
	}
	result, err = f.svc.PollSubmit(context.Background(), "two-sum", receipt.UserChallengeID, receipt.Pairs, 5)
	require.NoError(t, err)
	assert.Equal(t, PollSuccess, result.Status)
	assert.InDelta(t, 0.015, result.AverageTime, 1e-9)
	assert.Equal(t, 1100, result.AverageMemory)

	record, _ = f.results.FindOwned(receipt.UserChallengeID, 10, 5)
	assert.Equal(t, model.ResultDone, record.Status)
	assert.Equal(t, "Accepted", record.Message)
	assert.Equal(t, 1, f.results.acceptedResults)
	assert.Equal(t, 1, f.results.totalAttempts)
	assert.Equal(t, 1, f.results.finalizeCalls)

	// 待办联动与代码归档异步触发
	select {
	case challengeID := <-f.todos.notified:
		assert.Equal(t, uint(10), challengeID)
	case <-time.After(time.Second):
		t.Fatal("todo notification not delivered")
	}
	select {
	case code := <-f.archiver.archived:
		assert.Equal(t, "print(1)", code)
	case <-time.After(time.Second):
		t.Fatal("code archive not triggered")
	}
}

func TestPollSubmitIdempotentReplay(t *testing.T) {
	f := newJudgeFixture()

	receipt, err := f.svc.Submit(context.Background(), "two-sum", "print(1)", 71, 5)
	require.NoError(t, err)

	f.dispatcher.fetch = func([]string) ([]judge0.Submission, error) {
		return []judge0.Submission{
			terminal("tok-1", judge0.StatusAccepted, "0.01", 1000),
			terminal("tok-2", judge0.StatusAccepted, "0.02", 1200),
		}, nil
	}

	first, err := f.svc.PollSubmit(context.Background(), "two-sum", receipt.UserChallengeID, receipt.Pairs, 5)
	require.NoError(t, err)
	require.Equal(t, PollSuccess, first.Status)

	// 重复轮询返回已存储的结果，不再访问引擎、不重复计数
	f.dispatcher.fetch = func([]string) ([]judge0.Submission, error) {
		t.Fatal("terminal record must not be re-fetched from the engine")
		return nil, nil
	}
	replay, err := f.svc.PollSubmit(context.Background(), "two-sum", receipt.UserChallengeID, receipt.Pairs, 5)
	require.NoError(t, err)
	assert.Equal(t, PollSuccess, replay.Status)
	assert.InDelta(t, first.AverageTime, replay.AverageTime, 1e-9)
	assert.Equal(t, first.AverageMemory, replay.AverageMemory)
	assert.Equal(t, 1, f.results.finalizeCalls)
	assert.Equal(t, 1, f.results.acceptedResults)
	assert.Equal(t, 1, f.results.totalAttempts)
}

func TestPollSubmitFirstFailureWins(t *testing.T) {
	f := newJudgeFixture()

	receipt, err := f.svc.Submit(context.Background(), "two-sum", "print(1)", 71, 5)
	require.NoError(t, err)

	stderr := strptr("segfault")
	// 返回列表里 tok-2 的失败排在前面，即使 tok-1 也失败了
	f.dispatcher.fetch = func([]string) ([]judge0.Submission, error) {
		return []judge0.Submission{
			{Token: "tok-2", Status: judge0.StatusRuntimeErrorSIGSEGV, Stderr: stderr},
			terminal("tok-1", judge0.StatusWrongAnswer, "0.01", 1000),
		}, nil
	}

	result, err := f.svc.PollSubmit(context.Background(), "two-sum", receipt.UserChallengeID, receipt.Pairs, 5)
	require.NoError(t, err)
	assert.Equal(t, PollError, result.Status)
	assert.Equal(t, "Runtime Error (SIGSEGV)", result.Error)
	require.NotNil(t, result.Submission)
	assert.Equal(t, uint(2), result.Submission.TestCaseID)
	require.NotNil(t, result.ErrorTestCase)
	assert.Equal(t, uint(2), result.ErrorTestCase.ID)

	record, _ := f.results.FindOwned(receipt.UserChallengeID, 10, 5)
	assert.Equal(t, model.ResultFailed, record.Status)
	assert.Equal(t, 7, record.StatusID)
	assert.Equal(t, "Runtime Error (SIGSEGV)", record.Message)
	require.NotNil(t, record.TestcaseID)
	assert.Equal(t, uint(2), *record.TestcaseID)
	assert.Equal(t, 0, f.results.acceptedResults)
	assert.Equal(t, 1, f.results.totalAttempts)
}

func TestPollSubmitOwnership(t *testing.T) {
	f := newJudgeFixture()

	receipt, err := f.svc.Submit(context.Background(), "two-sum", "print(1)", 71, 5)
	require.NoError(t, err)

	// 其他用户拿不到这条记录
	_, err = f.svc.PollSubmit(context.Background(), "two-sum", receipt.UserChallengeID, receipt.Pairs, 99)
	assert.ErrorIs(t, err, util.ErrSubmissionNotFound)

	// 不存在的记录 ID 同样返回未找到
	_, err = f.svc.PollSubmit(context.Background(), "two-sum", 424242, receipt.Pairs, 5)
	assert.ErrorIs(t, err, util.ErrSubmissionNotFound)
}

func TestPollSubmitLostRaceReturnsStoredResult(t *testing.T) {
	f := newJudgeFixture()
	f.results.loseRace = true

	receipt, err := f.svc.Submit(context.Background(), "two-sum", "print(1)", 71, 5)
	require.NoError(t, err)

	f.dispatcher.fetch = func([]string) ([]judge0.Submission, error) {
		return []judge0.Submission{
			terminal("tok-1", judge0.StatusAccepted, "0.01", 1000),
			terminal("tok-2", judge0.StatusAccepted, "0.02", 1200),
		}, nil
	}

	result, err := f.svc.PollSubmit(context.Background(), "two-sum", receipt.UserChallengeID, receipt.Pairs, 5)
	require.NoError(t, err)
	// 输掉竞争的一方返回赢家已存储的结果，不做任何计数
	assert.Equal(t, PollSuccess, result.Status)
	assert.InDelta(t, 0.5, result.AverageTime, 1e-9)
	assert.Equal(t, 777, result.AverageMemory)
	assert.Equal(t, 0, f.results.finalizeCalls)
	assert.Equal(t, 0, f.results.acceptedResults)
}

func TestPollSubmitUnknownToken(t *testing.T) {
	f := newJudgeFixture()

	receipt, err := f.svc.Submit(context.Background(), "two-sum", "print(1)", 71, 5)
	require.NoError(t, err)

	f.dispatcher.fetch = func([]string) ([]judge0.Submission, error) {
		return []judge0.Submission{
			terminal("tok-evil", judge0.StatusAccepted, "0.01", 1000),
			terminal("tok-2", judge0.StatusAccepted, "0.02", 1200),
		}, nil
	}

	_, err = f.svc.PollSubmit(context.Background(), "two-sum", receipt.UserChallengeID, receipt.Pairs, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown token")
}

// ---- aggregation helpers ----

func TestMeanPanicsOnEmptyInput(t *testing.T) {
	assert.Panics(t, func() { mean(nil) })
}

func TestRounding(t *testing.T) {
	assert.InDelta(t, 0.015, round3((0.01+0.02)/2), 1e-9)
	assert.InDelta(t, 1.333, round3(4.0/3.0), 1e-9)
	// 逢5远离零
	assert.Equal(t, 101, int(math.Round(mean([]float64{100, 101}))))
	assert.Equal(t, 1100, int(math.Round(mean([]float64{1000, 1200}))))
}
