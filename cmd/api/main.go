package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/schedwise/timetable-api/api/swagger"
	"github.com/schedwise/timetable-api/internal/handler"
	"github.com/schedwise/timetable-api/internal/middleware"
	"github.com/schedwise/timetable-api/internal/models"
	"github.com/schedwise/timetable-api/internal/repository"
	"github.com/schedwise/timetable-api/internal/service"
	"github.com/schedwise/timetable-api/pkg/cache"
	"github.com/schedwise/timetable-api/pkg/config"
	"github.com/schedwise/timetable-api/pkg/database"
	"github.com/schedwise/timetable-api/pkg/logger"
	corsmiddleware "github.com/schedwise/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/schedwise/timetable-api/pkg/middleware/requestid"
)

// @title Schedwise Timetable API
// @version 1.0.0
// @description Constraint-based academic timetable allocation service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := buildRouter(cfg, db, redisClient, logr)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func buildRouter(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) *gin.Engine {
	validate := validator.New()

	scheduleRepo := repository.NewScheduleRepository(db)
	curriculumRepo := repository.NewCurriculumRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	instructorRepo := repository.NewInstructorRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Timetable.CacheTTL, logr, cfg.Timetable.CacheEnabled)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	scheduleSvc := service.NewScheduleService(
		scheduleRepo, sectionRepo, subjectRepo, instructorRepo, roomRepo,
		db, cacheSvc, metricsSvc, validate, logr,
	)
	timetableSvc := service.NewTimetableService(
		curriculumRepo, sectionRepo, subjectRepo, instructorRepo, roomRepo,
		scheduleRepo, scheduleSvc, db,
		service.TimetablePolicy{
			AllowUnqualifiedFallback: cfg.Scheduler.AllowUnqualifiedFallback,
			AsyncWorkers:             cfg.Scheduler.AsyncWorkers,
			RunTTL:                   cfg.Scheduler.RunTTL,
		},
		metricsSvc, validate, logr,
	)
	validatorSvc := service.NewValidatorService(sectionRepo, instructorRepo, roomRepo, scheduleRepo, logr)
	timetableViewSvc := service.NewTimetableViewService(
		scheduleRepo, sectionRepo, subjectRepo, instructorRepo, roomRepo,
		cacheSvc, cfg.Export.Title, logr,
	)

	timetableSvc.StartWorkers(context.Background())

	authHandler := handler.NewAuthHandler(authSvc)
	timetableHandler := handler.NewTimetableHandler(timetableSvc, validatorSvc)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc, timetableViewSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := r.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
		}

		authorized := v1.Group("")
		authorized.Use(middleware.JWT(authSvc))
		{
			timetable := authorized.Group("/timetable")
			{
				timetable.POST("/generate", middleware.RequireRoles(models.RoleAdmin), timetableHandler.Generate)
				timetable.GET("/runs/:id", middleware.RequireRoles(models.RoleAdmin), timetableHandler.GetRun)
				timetable.GET("/validate-slot", timetableHandler.ValidateSlot)
				timetable.GET("/slot-options", timetableHandler.SlotOptions)
			}

			schedules := authorized.Group("/schedules")
			{
				schedules.GET("", scheduleHandler.List)
				schedules.GET("/:id", scheduleHandler.Get)
				schedules.POST("", middleware.RequireRoles(models.RoleAdmin), scheduleHandler.Create)
				schedules.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), scheduleHandler.Update)
				schedules.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), scheduleHandler.Delete)
			}

			sections := authorized.Group("/sections")
			{
				sections.GET("/:id/timetable", scheduleHandler.SectionTimetable)
				sections.GET("/:id/timetable/export", scheduleHandler.ExportSectionTimetable)
			}
		}
	}

	return r
}
