// postsd 是 posts 接口的参考后端，供本地开发与端到端测试使用。
//
// @title postsync reference backend
// @version 1.0
// @description posts 集合的 CRUD 接口
// @host localhost:8080
// @BasePath /
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/postsync/config"
	"github.com/d60-Lab/postsync/internal/api"
	"github.com/d60-Lab/postsync/internal/api/handler"
	"github.com/d60-Lab/postsync/internal/repository"
	"github.com/d60-Lab/postsync/internal/service"
	"github.com/d60-Lab/postsync/pkg/database"
	"github.com/d60-Lab/postsync/pkg/logger"
	"github.com/d60-Lab/postsync/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "config file (default ./configs/config.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		reportExit(os.Stderr, err)
		os.Exit(1)
	}
}

// loggerReady 在全局日志器初始化后置为 true
var loggerReady bool

// reportExit 输出退出原因；日志器未初始化时直接写 w
func reportExit(w io.Writer, err error) {
	if !loggerReady {
		fmt.Fprintf(w, "postsd: %v\n", err)
		return
	}
	logger.Error("postsd exited", zap.Error(err))
	_ = logger.Sync()
}

func run(configPath string) error {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	loggerReady = true
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 错误上报
	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			AttachStacktrace: true,
		}); err != nil {
			return err
		}
		defer sentry.Flush(2 * time.Second)
	}

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	if err := repository.InitSchema(db); err != nil {
		return err
	}
	rdb, err := database.InitRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	svc := service.NewPostService(repository.NewPostRepository(db), rdb, cfg.Redis.TTL)
	router := api.NewRouter(cfg, handler.NewHandler(svc))

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("postsd listening",
			zap.String("addr", srv.Addr),
			zap.String("db", cfg.Database.Driver),
			zap.Bool("cache", rdb != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
