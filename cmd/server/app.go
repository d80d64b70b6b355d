// cmd/server/app.go

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"memoledger/internal/config"
	"memoledger/internal/ledger"
	"memoledger/internal/memo"
	"memoledger/internal/server"
	"memoledger/internal/storage"
	"memoledger/internal/transfer"
)

// backend 為 storage.Backend 加上關機時的收尾動作。
type backend interface {
	storage.Backend
	Close() error
}

type memoryBackend struct {
	*storage.MemoryBackend
}

func (memoryBackend) Close() error { return nil }

// app 為組裝完成、可直接啟動的服務。
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend backend
	ledger  *ledger.Ledger
	handler http.Handler
}

func run() error {
	configPath := flag.String("config", "", "path to config.yaml (overrides "+config.EnvConfigFile+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return a.serve(ctx)
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	b, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}

	l, err := buildLedger(ctx, cfg, b)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	book := memo.NewBook(
		storage.NewLookupMap(b, cfg.Storage.Namespace),
		memo.WithLogger(logger.With("component", "memo")),
	)
	treasury := ledger.NewTreasury(l, cfg.Ledger.Treasury)
	action := transfer.NewAction(
		treasury,
		transfer.WithLogger(logger.With("component", "transfer")),
	)
	logger.Info("transfer capability ready", "source", treasury.Source())

	// persist：成功轉帳或存款後把帳本快照寫回同一個後端
	persist := func(ctx context.Context) error {
		return l.Save(ctx, b, ledger.SnapshotKey)
	}

	srv := server.NewServer(book, action,
		server.WithLedger(l),
		server.WithPersist(persist),
		server.WithLogger(logger.With("component", "http")),
		server.WithIdentityHeader(cfg.Server.IdentityHeader),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		backend: b,
		ledger:  l,
		handler: srv.Router(),
	}, nil
}

func openBackend(cfg *config.Config) (backend, error) {
	if cfg.Storage.Path == "" {
		return memoryBackend{storage.NewMemoryBackend()}, nil
	}
	fb, err := storage.OpenFile(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return fb, nil
}

// buildLedger 先從後端還原帳本，再開立設定檔中尚不存在的帳戶；
// 已存在的帳戶保持快照中的餘額。
func buildLedger(ctx context.Context, cfg *config.Config, b storage.Backend) (*ledger.Ledger, error) {
	l := ledger.New()
	if _, err := l.Load(ctx, b, ledger.SnapshotKey); err != nil {
		return nil, fmt.Errorf("restore ledger: %w", err)
	}
	if err := openMissing(l, cfg); err != nil {
		return nil, err
	}
	if err := l.Save(ctx, b, ledger.SnapshotKey); err != nil {
		return nil, fmt.Errorf("save ledger: %w", err)
	}
	return l, nil
}

func openMissing(l *ledger.Ledger, cfg *config.Config) error {
	balances, err := cfg.InitialBalances()
	if err != nil {
		return fmt.Errorf("ledger accounts: %w", err)
	}
	for id, balance := range balances {
		if _, err := l.Open(id, balance); err != nil && !errors.Is(err, ledger.ErrExists) {
			return fmt.Errorf("open ledger account %s: %w", id, err)
		}
	}
	return nil
}

// serve 啟動 HTTP 伺服器，ctx 取消後在逾時內優雅關機並關閉後端。
func (a *app) serve(ctx context.Context) error {
	shutdownTimeout, err := a.cfg.ShutdownTimeout()
	if err != nil {
		return fmt.Errorf("shutdown timeout: %w", err)
	}

	httpServer := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("memo server listening", "addr", a.cfg.Server.Addr, "storage", storageKind(a.cfg))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	serveErr := g.Wait()

	// 結束前保存帳本並關閉後端
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	saveErr := a.ledger.Save(closeCtx, a.backend, ledger.SnapshotKey)
	closeErr := a.backend.Close()
	a.logger.Info("memo server stopped")

	return errors.Join(serveErr, saveErr, closeErr)
}

func storageKind(cfg *config.Config) string {
	if cfg.Storage.Path == "" {
		return "memory"
	}
	return "file:" + cfg.Storage.Path
}
