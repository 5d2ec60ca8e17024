package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Connect4-Screen-bot/internal/botbuilder"
	appcfg "github.com/park285/Connect4-Screen-bot/internal/config"
	"github.com/park285/Connect4-Screen-bot/internal/obslog"
	"github.com/park285/Connect4-Screen-bot/internal/operator"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Close()
	logger := obslog.L()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := botbuilder.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("init_failed", zap.Error(err))
		return 1
	}
	defer deps.Close()

	// 에이전트가 살아있는지만 확인; 실패해도 보정 단계에서 다시 드러남
	ictx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if info, err := deps.Agent.Info(ictx); err != nil {
		logger.Warn("screen_agent_unreachable", zap.String("url", cfg.ScreenAgentURL), zap.Error(err))
	} else {
		logger.Info("screen_agent_ok", zap.String("name", info.Name), zap.String("version", info.Version),
			zap.Int("width", info.Width), zap.Int("height", info.Height))
	}
	cancel()

	if cfg.EventsAddr != "" {
		go func() {
			if err := deps.Hub.ListenAndServe(ctx, cfg.EventsAddr); err != nil {
				logger.Error("events_server_failed", zap.Error(err))
			}
		}()
	}

	logger.Info("bot_start",
		zap.String("screen", cfg.ScreenBackend),
		zap.String("engine", cfg.EngineBackend),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Duration("opponent_timeout", cfg.OpponentTimeout))

	err = deps.Machine.Run(ctx)
	switch {
	case err == nil, errors.Is(err, operator.ErrQuit), errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
		logger.Info("bot_stop", zap.Stringer("state", deps.Machine.State()))
		return 0
	default:
		logger.Error("bot_failed", zap.Error(err))
		return 1
	}
}
