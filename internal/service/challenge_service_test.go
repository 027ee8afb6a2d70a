package service

import (
	"code_arena_backend/internal/model"
	"code_arena_backend/internal/repository"
	"code_arena_backend/internal/util"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeChallengeStore struct {
	challenges  map[string]*model.Challenge
	detailCalls int
	created     *model.Challenge
	createdTags []uint
}

func (f *fakeChallengeStore) FindBySlug(slug string) (*model.Challenge, error) {
	if c, ok := f.challenges[slug]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeChallengeStore) FindDetailBySlug(slug string) (*model.Challenge, error) {
	f.detailCalls++
	return f.FindBySlug(slug)
}

func (f *fakeChallengeStore) List(page, limit int) ([]model.Challenge, int64, error) {
	var out []model.Challenge
	for _, c := range f.challenges {
		out = append(out, *c)
	}
	return out, int64(len(out)), nil
}

func (f *fakeChallengeStore) Create(challenge *model.Challenge, tagIDs []uint) error {
	f.created = challenge
	f.createdTags = tagIDs
	return nil
}

func (f *fakeChallengeStore) CountByDifficulty() ([]repository.DifficultyCount, error) {
	return []repository.DifficultyCount{{Difficulty: model.Easy, Total: 1}}, nil
}

func (f *fakeChallengeStore) CountAcceptedByUser(userID uint) ([]repository.DifficultyCount, error) {
	return nil, nil
}

type fakeTestCaseStore struct {
	cases   []model.TestCase
	created []model.TestCase
}

func (f *fakeTestCaseStore) FindByChallenge(challengeID uint) ([]model.TestCase, error) {
	var out []model.TestCase
	for _, tc := range f.cases {
		if tc.ChallengeID == challengeID {
			out = append(out, tc)
		}
	}
	return out, nil
}

func (f *fakeTestCaseStore) CreateBatch(testCases []model.TestCase) error {
	f.created = append(f.created, testCases...)
	return nil
}

type fakeResultReader struct {
	done []uint
}

func (f *fakeResultReader) DoneChallengeIDs(userID uint) ([]uint, error) {
	return f.done, nil
}

func newChallengeFixture(t *testing.T) (*ChallengeService, *fakeChallengeStore, *fakeTestCaseStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	challenge := &model.Challenge{Name: "Two Sum", Slug: "two-sum", Difficulty: model.Easy}
	challenge.ID = 10

	store := &fakeChallengeStore{challenges: map[string]*model.Challenge{"two-sum": challenge}}
	testCases := &fakeTestCaseStore{cases: []model.TestCase{
		{BaseModel: model.BaseModel{ID: 1}, ChallengeID: 10, Input: "1 2", ExpectedOutput: "3", IsSampled: true},
		{BaseModel: model.BaseModel{ID: 2}, ChallengeID: 10, Input: "4 5", ExpectedOutput: "9"},
	}}
	results := &fakeResultReader{}

	return NewChallengeService(store, testCases, results, cache), store, testCases, mr
}

func TestGetDetailCachesResult(t *testing.T) {
	svc, store, _, _ := newChallengeFixture(t)

	first, err := svc.GetDetail(context.Background(), "two-sum")
	require.NoError(t, err)
	assert.Equal(t, "two-sum", first.Slug)
	assert.Equal(t, 1, store.detailCalls)

	// 第二次命中缓存，不再访问数据库
	second, err := svc.GetDetail(context.Background(), "two-sum")
	require.NoError(t, err)
	assert.Equal(t, first.Slug, second.Slug)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.detailCalls)
}

func TestGetDetailNotFound(t *testing.T) {
	svc, _, _, _ := newChallengeFixture(t)
	_, err := svc.GetDetail(context.Background(), "missing")
	assert.ErrorIs(t, err, util.ErrChallengeNotFound)
}

func TestGetDetailSurvivesCacheOutage(t *testing.T) {
	svc, store, _, mr := newChallengeFixture(t)
	mr.Close()

	// 缓存不可用时降级为直查数据库
	challenge, err := svc.GetDetail(context.Background(), "two-sum")
	require.NoError(t, err)
	assert.Equal(t, "two-sum", challenge.Slug)
	assert.Equal(t, 1, store.detailCalls)
}

func TestAddTestCasesInvalidatesCache(t *testing.T) {
	svc, _, testCases, mr := newChallengeFixture(t)

	_, err := svc.GetDetail(context.Background(), "two-sum")
	require.NoError(t, err)
	assert.True(t, mr.Exists("challenge:detail:two-sum"))

	created, err := svc.AddTestCases(context.Background(), "two-sum", []TestCaseInput{
		{Input: "7 8", ExpectedOutput: "15"},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, uint(10), created[0].ChallengeID)
	require.Len(t, testCases.created, 1)

	assert.False(t, mr.Exists("challenge:detail:two-sum"))
}

func TestCreateChallengeDefaultsAndSlug(t *testing.T) {
	svc, store, _, _ := newChallengeFixture(t)

	challenge, err := svc.CreateChallenge(&CreateChallengeInput{
		Name:   "Longest Common Subsequence!",
		TagIDs: []uint{1, 2},
		Hints:  []HintInput{{Question: "q", Answer: "a"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "longest-common-subsequence", challenge.Slug)
	assert.Equal(t, model.Easy, challenge.Difficulty)
	assert.Equal(t, float64(1), challenge.TimeLimit)
	assert.Equal(t, 128, challenge.SpaceLimit)
	require.Len(t, challenge.Hints, 1)
	assert.Equal(t, []uint{1, 2}, store.createdTags)
}

func TestListMarksSolvedChallenges(t *testing.T) {
	svc, store, _, _ := newChallengeFixture(t)
	other := &model.Challenge{Name: "Other", Slug: "other"}
	other.ID = 11
	store.challenges["other"] = other

	results := svc.results.(*fakeResultReader)
	results.done = []uint{10}

	summaries, total, err := svc.List(1, 20, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	solvedBySlug := map[string]bool{}
	for _, s := range summaries {
		solvedBySlug[s.Slug] = s.Solved
	}
	assert.True(t, solvedBySlug["two-sum"])
	assert.False(t, solvedBySlug["other"])
}

func TestListTestCasesSampledOnly(t *testing.T) {
	svc, _, _, _ := newChallengeFixture(t)

	sampled, err := svc.ListTestCases("two-sum", false)
	require.NoError(t, err)
	require.Len(t, sampled, 1)
	assert.True(t, sampled[0].IsSampled)

	all, err := svc.ListTestCases("two-sum", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
