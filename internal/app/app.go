package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quant-optimizer/api"
	"quant-optimizer/internal/config"
	"quant-optimizer/internal/engine"
	"quant-optimizer/internal/events"
	"quant-optimizer/internal/infrastructure"
	"quant-optimizer/internal/optimizer"
	"quant-optimizer/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App defines the application structure and its dependencies
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	DB         *pgxpool.Pool
	NC         *nats.Conn
	Store      *store.Store
	Optimizer  *optimizer.Optimizer
	HTTPServer *http.Server
}

// NewApp creates a new application instance
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	infrastructure.Init(cfg.LogLevel)
	logger := infrastructure.Logger

	return &App{
		Config: &cfg,
		Logger: logger,
	}, nil
}

// Init initializes all application components
func (a *App) Init(ctx context.Context) error {
	// 1. Results store; reconcile leftovers of any interrupted save.
	st, err := store.New(a.Config.ResultsDir, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to open results store: %w", err)
	}
	a.Store = st

	if removed, err := st.Reconcile(); err != nil {
		a.Logger.Warn("store reconciliation failed", zap.Error(err))
	} else if removed > 0 {
		a.Logger.Info("store reconciled", zap.Int("orphans_removed", removed))
	}

	// 2. Market database for the backtest evaluator.
	dbPool, err := pgxpool.Connect(ctx, a.Config.DB_DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = dbPool

	loader := engine.NewDataLoader(dbPool)
	eval := engine.NewBacktestEvaluator(loader, a.Config.CandlePeriod)

	// 3. NATS eventing is best-effort: a run service without a broker is
	// still fully functional.
	opts := []optimizer.Option{}
	nc, js, err := infrastructure.InitNATS(a.Config.NatsURL)
	if err != nil {
		a.Logger.Warn("NATS unavailable, run events disabled", zap.Error(err))
	} else {
		a.NC = nc
		publisher, err := events.NewPublisher(js, a.Logger)
		if err != nil {
			a.Logger.Warn("failed to set up run events", zap.Error(err))
		} else {
			opts = append(opts, optimizer.WithPublisher(publisher))
		}
	}

	a.Optimizer = optimizer.New(a.Store, eval, a.Logger, opts...)
	return nil
}

// Run starts the HTTP server and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	a.HTTPServer = &http.Server{
		Addr:    ":" + a.Config.Port,
		Handler: a.setupRouter(),
	}

	go func() {
		a.Logger.Info("starting http server", zap.String("port", a.Config.Port))
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	return a.waitForShutdown()
}

// waitForShutdown handles graceful shutdown signals
func (a *App) waitForShutdown() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.Logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if a.NC != nil {
		a.NC.Close()
	}
	a.DB.Close()

	return nil
}

// setupRouter configures the Gin router and its routes
func (a *App) setupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	apiHandler := api.NewHandler(a.Optimizer, a.Store, api.Defaults{
		Concurrency:     a.Config.Concurrency,
		TrialTimeoutSec: a.Config.TrialTimeoutSec,
		MaxCombinations: a.Config.MaxCombinations,
	}, a.Logger)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/optimize", apiHandler.RunOptimization)
		v1.GET("/runs", apiHandler.ListRuns)
		v1.GET("/runs/:id", apiHandler.GetRun)
		v1.DELETE("/runs/:id", apiHandler.DeleteRun)
		v1.POST("/runs/compare", apiHandler.CompareRuns)
		v1.GET("/stats", apiHandler.GetStatistics)
	}

	return r
}
