package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/planforge/internal/config"
	"github.com/smallbiznis/planforge/internal/observability"
	obsmiddleware "github.com/smallbiznis/planforge/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/planforge/internal/observability/metrics"
	obstracing "github.com/smallbiznis/planforge/internal/observability/tracing"
	plandomain "github.com/smallbiznis/planforge/internal/plan/domain"
	"github.com/smallbiznis/planforge/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	genID       *snowflake.Node
	planSvc     plandomain.Service
	obsMetrics  *obsmetrics.Metrics
	planLimiter *ratelimit.PlanMutationLimiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	GenID       *snowflake.Node
	PlanSvc     plandomain.Service
	ObsMetrics  *obsmetrics.Metrics            `optional:"true"`
	PlanLimiter *ratelimit.PlanMutationLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		genID:       p.GenID,
		planSvc:     p.PlanSvc,
		obsMetrics:  p.ObsMetrics,
		planLimiter: p.PlanLimiter,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.OrgContext())

	api.GET("/plans", s.ListPlans)
	api.POST("/plans", s.PlanMutationRateLimit(), s.CreatePlan)
	api.GET("/plans/:id", s.GetPlan)
	api.PUT("/plans/:id", s.PlanMutationRateLimit(), s.UpdatePlan)
	api.POST("/plans/:id/validate", s.ValidatePlanConfig)
}
