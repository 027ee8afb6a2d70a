package controller

import (
	"code_arena_backend/internal/service"
	"code_arena_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type TodoController struct {
	TodoService *service.TodoService
}

func NewTodoController(todoService *service.TodoService) *TodoController {
	return &TodoController{TodoService: todoService}
}

// AddTodoRequest 加入待办请求
// swagger:model AddTodoRequest
type AddTodoRequest struct {
	ChallengeSlug string `json:"challengeSlug" binding:"required"`
}

// Add godoc
// @Summary 把题目加入待办清单
// @Description 同一题的未完成待办不会重复添加
// @Tags 待办
// @Accept  json
// @Produce  json
// @Param   body body AddTodoRequest true "题目 slug"
// @Success 201 {object} util.Response{data=model.TodoChallenge}
// @Failure 404 {object} util.Response "题目不存在"
// @Failure 409 {object} util.Response "该题已在待办清单中"
// @Router /api/todos [post]
func (c *TodoController) Add(ctx *gin.Context) {
	var req AddTodoRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	todo, err := c.TodoService.Add(claims.UserID, req.ChallengeSlug)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrChallengeNotFound):
			util.NotFound(ctx, err.Error())
		case errors.Is(err, util.ErrTodoExists):
			util.Error(ctx, 409, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Created(ctx, todo)
}

// List godoc
// @Summary 待办清单
// @Description 返回当前用户最近的未完成待办（最多10条）
// @Tags 待办
// @Produce  json
// @Success 200 {object} util.Response{data=[]model.TodoChallenge}
// @Router /api/todos [get]
func (c *TodoController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	todos, err := c.TodoService.List(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, todos)
}
