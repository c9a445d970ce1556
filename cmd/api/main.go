package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-relay/backend/internal/config"
	"github.com/zhouzirui/z-relay/backend/internal/handler"
	"github.com/zhouzirui/z-relay/backend/internal/logger"
	"github.com/zhouzirui/z-relay/backend/internal/service/events"
	"github.com/zhouzirui/z-relay/backend/internal/service/relay"
	"github.com/zhouzirui/z-relay/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()
	zap.ReplaceGlobals(zlog)

	st, err := store.Open(ctx, cfg.Store, zlog)
	if err != nil {
		zlog.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			zlog.Warn("close store", zap.Error(err))
		}
	}()

	// NATS 仅作为消息镜像，连接失败时降级为不发布
	var publisher events.Publisher = events.Nop{}
	if cfg.Events.Enabled() {
		nc, err := events.NewNatsPublisher(events.NatsConfig{
			URL:     cfg.Events.NatsURL,
			Subject: cfg.Events.NatsSubject,
			Name:    cfg.Events.NatsName,
		}, zlog)
		if err != nil {
			zlog.Warn("nats unavailable, message mirror disabled", zap.Error(err))
		} else {
			publisher = nc
		}
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			zlog.Warn("close publisher", zap.Error(err))
		}
	}()

	writer := relay.NewWriter(cfg.Relay.PersistQueue, cfg.Relay.PersistTimeout, zlog)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := writer.Close(flushCtx); err != nil {
			zlog.Warn("persistence queue not drained", zap.Error(err))
		}
	}()

	hub := relay.NewHub(relay.OptionsFromConfig(cfg.Relay), st, publisher, writer, zlog)
	hub.Restore(ctx)

	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	router := handler.NewRouter(hub, cfg.Relay, zlog)

	startServer(ctx, cfg.Server, router, zlog)
	stop()
	<-hubDone
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, zlog *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	zlog.Info("Z Relay backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		zlog.Error("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
