package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/member-signups/internal/handler"
	"github.com/noah-isme/member-signups/internal/repository"
	"github.com/noah-isme/member-signups/internal/rpc"
	"github.com/noah-isme/member-signups/internal/service"
	"github.com/noah-isme/member-signups/pkg/cache"
	"github.com/noah-isme/member-signups/pkg/config"
	"github.com/noah-isme/member-signups/pkg/database"
	"github.com/noah-isme/member-signups/pkg/logger"
)

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	metrics := service.NewMetricsService()

	remote, err := rpc.NewXMLRPCRequester(cfg.MemberService.BaseURL(), rpc.Credentials{
		Database: cfg.MemberService.Database,
		Login:    cfg.MemberService.Login,
		Password: cfg.MemberService.Password,
	}, nil, logr)
	if err != nil {
		return fmt.Errorf("member service client: %w", err)
	}
	defer remote.Close() //nolint:errcheck
	requester := withTimeout(rpc.Instrument(remote, metrics), cfg.MemberService.Timeout)
	requester = rpc.Throttle(requester, newLimiter(cfg.MemberService.RateLimit, cfg.MemberService.RateBurst))

	validate := validator.New()
	signups := service.NewSignupService(service.SignupServiceParams{
		Requester: requester,
		Validator: validate,
		Logger:    logr,
		Config: service.SignupServiceConfig{
			MatchThreshold: cfg.Signups.MatchThreshold,
			DedupRule:      cfg.Signups.DedupRule,
		},
	})
	exports := service.NewExportService(nil, service.ExportConfig{Title: cfg.Exports.PDFTitle}, logr, nil, nil)
	auth := service.NewAuthService(validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		APIKeyHash:        cfg.JWT.APIKeyHash,
	})

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close() //nolint:errcheck
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}
	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}
	snapshotSvc := newSnapshotService(db, redisClient, cfg, logr)

	deps := routerDeps{
		cfg:           cfg,
		logger:        logr,
		metrics:       metrics,
		auth:          auth,
		entities:      handler.NewEntityHandler(service.NewEntityService(requester, logr)),
		signupLimiter: newLimiter(cfg.Signups.RateLimit, cfg.Signups.RateBurst),
	}
	deps.signups = handler.NewSignupHandler(signups, nil, exports, metrics, logr)
	if snapshotSvc != nil {
		deps.signups.WithSnapshots(snapshotSvc)
		deps.snapshots = handler.NewSnapshotHandler(snapshotSvc)
	}
	// Refresh publishes to Redis.
	if redisClient != nil {
		refresh := service.NewRefreshService(signups, snapshotSvc, metrics, service.RefreshConfig{
			Workers:    cfg.Signups.RefreshWorkers,
			MaxRetries: cfg.Signups.RefreshRetries,
			Persist:    db != nil,
		}, logr)
		refresh.Start(ctx)
		defer refresh.Stop()
		if cfg.Signups.MainEventCode != "" {
			refresh.Schedule(ctx, cfg.Signups.RefreshInterval, scheduledQuery(cfg.Signups))
		}
		deps.signups.WithRefresh(refresh)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logr.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// newSnapshotService returns nil when neither Postgres nor Redis is enabled.
func newSnapshotService(db *sqlx.DB, client *redis.Client, cfg *config.Config, logr *zap.Logger) *service.SnapshotService {
	if db == nil && client == nil {
		return nil
	}
	var (
		store     service.SnapshotStore
		published service.PublishStore
	)
	if db != nil {
		store = repository.NewSnapshotRepository(db)
	}
	if client != nil {
		published = repository.NewPublishRepository(client, cfg.Snapshots.PublishPrefix, logr)
	}
	return service.NewSnapshotService(store, published, cfg.Snapshots.PublishTTL, logr)
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// withTimeout bounds every member service call.
func withTimeout(next rpc.Requester, timeout time.Duration) rpc.Requester {
	if timeout <= 0 {
		return next
	}
	return rpc.RequesterFunc(func(ctx context.Context, model, action string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return next.Execute(ctx, model, action, args, kwargs)
	})
}

func scheduledQuery(cfg config.SignupsConfig) service.SignupQuery {
	q := service.SignupQuery{
		MainEventCode:   cfg.MainEventCode,
		OtherEventCodes: cfg.OtherEventCodes,
		Questions:       cfg.Questions,
	}
	if cfg.Limit > 0 {
		limit := cfg.Limit
		q.Limit = &limit
	}
	return q
}
