package app

import (
	"code_arena_backend/docs"
	"code_arena_backend/internal/config"
	"code_arena_backend/internal/middleware"
	"code_arena_backend/internal/model"
	"code_arena_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 2. 题目浏览：允许游客访问，登录用户可看通过状态
	browse := router.Group("/api/challenges")
	browse.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		browse.GET("", c.challenge.List)
		browse.GET("/stats/difficulty", c.challenge.DifficultyStats)
		browse.GET("/:slug", c.challenge.Detail)
		browse.GET("/:slug/testcases", c.challenge.ListTestCases)
	}

	// 3. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		// 判题流水线
		authGroup.POST("/challenges/:slug/run", c.challenge.Run)
		authGroup.POST("/challenges/:slug/poll-run", c.challenge.PollRun)
		authGroup.POST("/challenges/:slug/submit", c.challenge.Submit)
		authGroup.POST("/challenges/:slug/poll-submit", c.challenge.PollSubmit)

		// 待办清单
		authGroup.POST("/todos", c.todo.Add)
		authGroup.GET("/todos", c.todo.List)

		// 教师相关接口
		teacher := authGroup.Group("")
		teacher.Use(middleware.RoleMiddleware(model.Teacher))
		{
			teacher.POST("/challenges", c.challenge.Create)
			teacher.POST("/challenges/:slug/testcases", c.challenge.AddTestCases)
		}
	}
}
