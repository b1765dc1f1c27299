package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"pcconv-go/internal/config"
	"pcconv-go/internal/handler"
	"pcconv-go/pkg/log"
	"pcconv-go/pkg/token"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control API",
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	cfg := config.Conf
	if cfg.JWT.Secret == "" {
		return errors.New("jwt.secret must be set to serve the API")
	}

	a, err := buildApp(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TokenExpireHours)
	r := handler.NewRouter(a.batchService, a.hub, jwtManager)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info("接收到停机信号，正在关闭服务...")
	case err := <-serveErr:
		return fmt.Errorf("HTTP 服务监听失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	// 取消正在运行的后台批次，等待它写完结果
	if err := a.batchService.Shutdown(ctx); err != nil {
		log.Errorf("等待后台批次结束超时: %v", err)
	}
	log.Info("服务已优雅关闭")
	return nil
}
