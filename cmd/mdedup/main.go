package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/mdedup/internal/config"
	"github.com/xxxsen/mdedup/internal/handler"
	"github.com/xxxsen/mdedup/internal/middleware"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "mdedup",
		Short: "duplicate and near-duplicate detection for markdown documents",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run mdedup server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(a)
		},
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(newBatchCmd(&configPath))
	rootCmd.AddCommand(newCheckCmd(&configPath))
	rootCmd.AddCommand(newSimilarityCmd(&configPath))
	rootCmd.AddCommand(newTokenCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func initLogger(cfg *config.Config) {
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
}

func runServer(a *app) error {
	cfg := a.cfg
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("db_host", cfg.Database.Host),
		zap.String("report_store", cfg.ReportStore.Type),
	)

	sched, err := a.scheduler()
	if err != nil {
		return err
	}

	deps := handler.RouterDeps{
		Dedup:         handler.NewDedupHandler(a.dedup),
		Jobs:          handler.NewJobHandler(sched),
		JWTSecret:     []byte(cfg.JWTSecret),
		BatchInterval: time.Duration(cfg.BatchRateLimitSeconds) * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	defer sched.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
