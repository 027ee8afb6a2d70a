package app

import (
	"code_arena_backend/internal/config"
	"code_arena_backend/internal/controller"
	"code_arena_backend/internal/judge0"
	"code_arena_backend/internal/repository"
	"code_arena_backend/internal/service"
	"code_arena_backend/pkg/database"
	"code_arena_backend/pkg/logger"
	"code_arena_backend/pkg/monitoring"
	"code_arena_backend/pkg/security"
	"code_arena_backend/pkg/tracing"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client
}

type repositories struct {
	user      *repository.UserRepository
	challenge *repository.ChallengeRepository
	testCase  *repository.TestCaseRepository
	result    *repository.UserChallengeResultRepository
	todo      *repository.TodoChallengeRepository
}

type services struct {
	auth      *service.AuthService
	challenge *service.ChallengeService
	judge     *service.JudgeService
	todo      *service.TodoService
	storage   *service.StorageService
}

type controllers struct {
	auth      *controller.AuthController
	challenge *controller.ChallengeController
	todo      *controller.TodoController
	health    *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:      repository.NewUserRepository(db),
		challenge: repository.NewChallengeRepository(db),
		testCase:  repository.NewTestCaseRepository(db),
		result:    repository.NewUserChallengeResultRepository(db),
		todo:      repository.NewTodoChallengeRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.auth = service.NewAuthService(repos.user, cfg)
	s.challenge = service.NewChallengeService(repos.challenge, repos.testCase, repos.result, rdb)
	s.todo = service.NewTodoService(repos.todo, repos.challenge)

	// 对象存储不可用时归档功能降级，判题主链路不受影响
	if cfg.Storage.MinioEndpoint != "" {
		storage, err := service.NewStorageService(&cfg.Storage)
		if err != nil {
			logger.Log.Warn("storage init failed, accepted code archiving disabled", zap.Error(err))
		} else {
			s.storage = storage
		}
	}

	var archiver service.CodeArchiver
	if s.storage != nil {
		archiver = s.storage
	}
	s.judge = service.NewJudgeService(
		repos.challenge,
		repos.testCase,
		repos.result,
		s.todo,
		archiver,
		judge0.NewClient(&cfg.Judge0),
	)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:      controller.NewAuthController(s.auth),
		challenge: controller.NewChallengeController(s.challenge, s.judge),
		todo:      controller.NewTodoController(s.todo),
		health:    controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// 缓存不可用时降级为直查数据库
		logger.Log.Warn("Failed to initialize redis, cache disabled", zap.Error(err))
		rdb = nil
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	controllers := app.initControllers(services, db, rdb)

	monitoring.Init()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("code-arena", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
