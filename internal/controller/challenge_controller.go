package controller

import (
	"code_arena_backend/internal/judge0"
	"code_arena_backend/internal/service"
	"code_arena_backend/internal/util"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ChallengeController struct {
	ChallengeService *service.ChallengeService
	JudgeService     *service.JudgeService
}

func NewChallengeController(challengeService *service.ChallengeService, judgeService *service.JudgeService) *ChallengeController {
	return &ChallengeController{
		ChallengeService: challengeService,
		JudgeService:     judgeService,
	}
}

// RunRequest 试运行请求：只跑指定的测试用例
// swagger:model RunRequest
type RunRequest struct {
	Code        string `json:"code" binding:"required"`
	LanguageID  int    `json:"languageId" binding:"required"`
	TestCaseIDs []uint `json:"testCaseIds" binding:"required,min=1"`
}

// SubmitRequest 正式提交请求：跑该题全部测试用例
// swagger:model SubmitRequest
type SubmitRequest struct {
	Code       string `json:"code" binding:"required"`
	LanguageID int    `json:"languageId" binding:"required"`
}

// PollRunRequest 试运行轮询请求
// swagger:model PollRunRequest
type PollRunRequest struct {
	Submissions []service.TokenPair `json:"submissions" binding:"required"`
}

// PollSubmitRequest 正式提交轮询请求
// swagger:model PollSubmitRequest
type PollSubmitRequest struct {
	UserChallengeID uint                `json:"userChallengeId" binding:"required"`
	Submissions     []service.TokenPair `json:"submissions" binding:"required"`
}

// Run godoc
// @Summary 试运行代码
// @Description 对指定测试用例发起一次判题，返回 token 与测试用例的配对，不落库
// @Tags 判题
// @Accept  json
// @Produce  json
// @Param   slug path string true "题目 slug"
// @Param   body body RunRequest true "代码与测试用例"
// @Success 201 {object} util.Response{data=[]service.TokenPair}
// @Failure 400 {object} util.Response "参数错误、无可用测试用例或判题引擎不可用"
// @Failure 404 {object} util.Response "题目不存在"
// @Router /api/challenges/{slug}/run [post]
func (c *ChallengeController) Run(ctx *gin.Context) {
	var req RunRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	pairs, err := c.JudgeService.StartRun(ctx.Request.Context(), ctx.Param("slug"), req.Code, req.LanguageID, req.TestCaseIDs)
	if err != nil {
		c.handleJudgeError(ctx, err)
		return
	}
	util.Created(ctx, pairs)
}

// PollRun godoc
// @Summary 轮询试运行结果
// @Description 未终态返回 Pending(202)；诊断性失败返回首条失败与对应用例；答案错误与成功返回全量结果
// @Tags 判题
// @Accept  json
// @Produce  json
// @Param   slug path string true "题目 slug"
// @Param   body body PollRunRequest true "token 与测试用例配对"
// @Success 200 {object} object "Success 或 Error"
// @Success 202 {object} object "Pending"
// @Failure 400 {object} util.Response "参数错误或判题引擎不可用"
// @Router /api/challenges/{slug}/poll-run [post]
func (c *ChallengeController) PollRun(ctx *gin.Context) {
	var req PollRunRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.JudgeService.PollRun(ctx.Request.Context(), req.Submissions)
	if err != nil {
		c.handleJudgeError(ctx, err)
		return
	}

	switch result.Status {
	case service.PollPending:
		ctx.JSON(http.StatusAccepted, gin.H{"message": "Pending", "statusCode": http.StatusAccepted})
	case service.PollError:
		body := gin.H{
			"message":    "Error",
			"error":      result.Error,
			"statusCode": http.StatusBadRequest,
		}
		if result.Submission != nil {
			body["submission"] = result.Submission
			body["errorTestCase"] = result.ErrorTestCase
		} else {
			body["submissions"] = result.Submissions
		}
		ctx.JSON(http.StatusBadRequest, body)
	default:
		ctx.JSON(http.StatusOK, gin.H{
			"message":     "Success",
			"statusCode":  http.StatusOK,
			"submissions": result.Submissions,
		})
	}
}

// Submit godoc
// @Summary 正式提交代码
// @Description 对全部测试用例发起判题并创建 PENDING 判题记录
// @Tags 判题
// @Accept  json
// @Produce  json
// @Param   slug path string true "题目 slug"
// @Param   body body SubmitRequest true "代码与语言"
// @Success 201 {object} util.Response{data=service.SubmitReceipt}
// @Failure 400 {object} util.Response "参数错误、无可用测试用例或判题引擎不可用"
// @Failure 404 {object} util.Response "题目不存在"
// @Router /api/challenges/{slug}/submit [post]
func (c *ChallengeController) Submit(ctx *gin.Context) {
	var req SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	receipt, err := c.JudgeService.Submit(ctx.Request.Context(), ctx.Param("slug"), req.Code, req.LanguageID, claims.UserID)
	if err != nil {
		c.handleJudgeError(ctx, err)
		return
	}
	util.Created(ctx, receipt)
}

// PollSubmit godoc
// @Summary 轮询正式提交结果
// @Description 全部终态后记录迁移到 DONE/FAILED（恰好一次）；重复轮询返回已存储的结果
// @Tags 判题
// @Accept  json
// @Produce  json
// @Param   slug path string true "题目 slug"
// @Param   body body PollSubmitRequest true "记录 ID 与 token 配对"
// @Success 200 {object} object "Success 或 Error"
// @Success 202 {object} object "Pending"
// @Failure 400 {object} util.Response "参数错误或判题引擎不可用"
// @Failure 404 {object} util.Response "题目或判题记录不存在"
// @Router /api/challenges/{slug}/poll-submit [post]
func (c *ChallengeController) PollSubmit(ctx *gin.Context) {
	var req PollSubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.JudgeService.PollSubmit(ctx.Request.Context(), ctx.Param("slug"), req.UserChallengeID, req.Submissions, claims.UserID)
	if err != nil {
		c.handleJudgeError(ctx, err)
		return
	}

	switch result.Status {
	case service.PollPending:
		ctx.JSON(http.StatusAccepted, gin.H{"message": "Pending", "statusCode": http.StatusAccepted})
	case service.PollError:
		ctx.JSON(http.StatusBadRequest, gin.H{
			"message":       "Error",
			"error":         result.Error,
			"statusCode":    http.StatusBadRequest,
			"submission":    result.Submission,
			"errorTestCase": result.ErrorTestCase,
		})
	default:
		ctx.JSON(http.StatusOK, gin.H{
			"message":       "Success",
			"statusCode":    http.StatusOK,
			"averageTime":   result.AverageTime,
			"averageMemory": result.AverageMemory,
		})
	}
}

// Create godoc
// @Summary 创建题目
// @Description 创建题目及其提示、标签、模板代码和测试用例，slug 由名称生成
// @Tags 题目
// @Accept  json
// @Produce  json
// @Param   body body service.CreateChallengeInput true "题目信息"
// @Success 201 {object} util.Response{data=model.Challenge}
// @Failure 400 {object} util.Response "请求参数错误"
// @Router /api/challenges [post]
func (c *ChallengeController) Create(ctx *gin.Context) {
	var input service.CreateChallengeInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	challenge, err := c.ChallengeService.CreateChallenge(&input)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Created(ctx, challenge)
}

// Detail godoc
// @Summary 题目详情
// @Description 返回题目及提示、标签、模板代码和示例测试用例，带缓存
// @Tags 题目
// @Produce  json
// @Param   slug path string true "题目 slug"
// @Success 200 {object} util.Response{data=model.Challenge}
// @Failure 404 {object} util.Response "题目不存在"
// @Router /api/challenges/{slug} [get]
func (c *ChallengeController) Detail(ctx *gin.Context) {
	challenge, err := c.ChallengeService.GetDetail(ctx.Request.Context(), ctx.Param("slug"))
	if err != nil {
		if errors.Is(err, util.ErrChallengeNotFound) {
			util.NotFound(ctx, err.Error())
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, challenge)
}

// List godoc
// @Summary 题目分页列表
// @Description 分页返回题目概要，已登录用户会标注已通过的题目
// @Tags 题目
// @Produce  json
// @Param   page query int false "页码" default(1)
// @Param   limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/challenges [get]
func (c *ChallengeController) List(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	var userID uint
	if claims := util.GetUserFromContext(ctx); claims != nil {
		userID = claims.UserID
	}

	challenges, total, err := c.ChallengeService.List(page, limit, userID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{
		List:  challenges,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// DifficultyStats godoc
// @Summary 难度分布统计
// @Description 全站各难度题目数与当前用户已通过数
// @Tags 题目
// @Produce  json
// @Success 200 {object} util.Response{data=service.DifficultyStats}
// @Router /api/challenges/stats/difficulty [get]
func (c *ChallengeController) DifficultyStats(ctx *gin.Context) {
	var userID uint
	if claims := util.GetUserFromContext(ctx); claims != nil {
		userID = claims.UserID
	}

	stats, err := c.ChallengeService.GetDifficultyStats(userID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

// AddTestCases godoc
// @Summary 追加测试用例
// @Description 为题目批量追加测试用例，仅教师与管理员可用
// @Tags 题目
// @Accept  json
// @Produce  json
// @Param   slug path string true "题目 slug"
// @Param   body body []service.TestCaseInput true "测试用例列表"
// @Success 201 {object} util.Response{data=[]model.TestCase}
// @Failure 404 {object} util.Response "题目不存在"
// @Router /api/challenges/{slug}/testcases [post]
func (c *ChallengeController) AddTestCases(ctx *gin.Context) {
	var inputs []service.TestCaseInput
	if err := ctx.ShouldBindJSON(&inputs); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if len(inputs) == 0 {
		util.BadRequest(ctx, "empty test case list")
		return
	}

	testCases, err := c.ChallengeService.AddTestCases(ctx.Request.Context(), ctx.Param("slug"), inputs)
	if err != nil {
		if errors.Is(err, util.ErrChallengeNotFound) {
			util.NotFound(ctx, err.Error())
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Created(ctx, testCases)
}

// ListTestCases godoc
// @Summary 题目测试用例列表
// @Description 普通用户仅见示例用例，教师与管理员可带 all=true 查看全部
// @Tags 题目
// @Produce  json
// @Param   slug path string true "题目 slug"
// @Param   all query bool false "是否包含隐藏用例"
// @Success 200 {object} util.Response{data=[]model.TestCase}
// @Failure 404 {object} util.Response "题目不存在"
// @Router /api/challenges/{slug}/testcases [get]
func (c *ChallengeController) ListTestCases(ctx *gin.Context) {
	includeHidden := false
	if ctx.Query("all") == "true" {
		claims := util.GetUserFromContext(ctx)
		if claims == nil || claims.Role == "student" {
			util.Forbidden(ctx)
			return
		}
		includeHidden = true
	}

	testCases, err := c.ChallengeService.ListTestCases(ctx.Param("slug"), includeHidden)
	if err != nil {
		if errors.Is(err, util.ErrChallengeNotFound) {
			util.NotFound(ctx, err.Error())
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, testCases)
}

func (c *ChallengeController) handleJudgeError(ctx *gin.Context, err error) {
	var transport *judge0.TransportError
	switch {
	case errors.Is(err, util.ErrChallengeNotFound), errors.Is(err, util.ErrSubmissionNotFound):
		util.NotFound(ctx, err.Error())
	case errors.Is(err, util.ErrNoTestCases),
		errors.Is(err, util.ErrUnsupportedLanguage),
		errors.Is(err, util.ErrNoSubmissions):
		util.BadRequest(ctx, err.Error())
	case errors.As(err, &transport):
		// 引擎不可达按处理错误报给客户端，由客户端重试
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}
