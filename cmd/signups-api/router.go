package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	_ "github.com/noah-isme/member-signups/api/swagger"
	"github.com/noah-isme/member-signups/internal/handler"
	"github.com/noah-isme/member-signups/internal/middleware"
	"github.com/noah-isme/member-signups/internal/service"
	"github.com/noah-isme/member-signups/pkg/config"
	"github.com/noah-isme/member-signups/pkg/logger"
	corsmiddleware "github.com/noah-isme/member-signups/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/member-signups/pkg/middleware/requestid"
)

type routerDeps struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *service.MetricsService
	auth      *service.AuthService
	signups   *handler.SignupHandler
	snapshots *handler.SnapshotHandler
	entities  *handler.EntityHandler

	// signupLimiter throttles the routes that trigger a full aggregation.
	signupLimiter *rate.Limiter
}

func newRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.logger))
	r.Use(corsmiddleware.New(d.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.metrics))

	metricsHandler := handler.NewMetricsHandler(d.metrics)
	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group(d.cfg.APIPrefix)
	api.POST("/auth/token", handler.NewAuthHandler(d.auth).Token)

	secured := api.Group("")
	secured.Use(middleware.JWT(d.auth))
	secured.GET("/metrics/summary", metricsHandler.Summary)
	signups := secured.Group("/signups", middleware.RateLimit(d.signupLimiter))
	signups.POST("", d.signups.Compute)
	signups.POST("/export", d.signups.Export)
	signups.POST("/refresh", d.signups.Refresh)
	secured.GET("/entities", d.entities.List)
	secured.GET("/entities/:name/fields", d.entities.Fields)
	secured.POST("/entities/:name/probe", d.entities.Probe)
	secured.POST("/entities/:name/search", d.entities.Search)
	if d.snapshots != nil && d.snapshots.Stored() {
		secured.GET("/snapshots", d.snapshots.List)
		secured.GET("/snapshots/:id", d.snapshots.Get)
	}
	if d.snapshots != nil && d.snapshots.Publishing() {
		secured.GET("/published/:event_code", d.snapshots.Published)
	}

	return r
}
