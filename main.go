package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TableSide/internal/cache"
	"TableSide/internal/config"
	"TableSide/internal/database"
	"TableSide/internal/database/model/catalog"
	"TableSide/internal/database/model/orderline"
	paymentrepo "TableSide/internal/database/model/payment"
	"TableSide/internal/database/model/tablesession"
	"TableSide/internal/feed"
	httphandler "TableSide/internal/handlers/http"
	"TableSide/internal/ledger"
	"TableSide/internal/payment"
	"TableSide/internal/pos"
	"TableSide/internal/session"
	"TableSide/internal/split"
	tsync "TableSide/internal/sync"
	"TableSide/internal/telegram"
	"TableSide/internal/version"
	"TableSide/pkg/logging"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := logging.GetLogger()
	logger.Info("Start Main")
	defer logger.Info("End Main")
	logger.Infof("Version %s", version.GetVersion().String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.GetConfig()); err != nil {
		logger.Errorf("failed run(): %+v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.GetLogger()
	logging.SetDebug(cfg.LOG.Debug == 1)

	tolerance, err := decimal.NewFromString(cfg.PAYMENT.Tolerance)
	if err != nil {
		return errors.Wrapf(err, "bad PAYMENT.Tolerance %q", cfg.PAYMENT.Tolerance)
	}
	closeThreshold, err := decimal.NewFromString(cfg.PAYMENT.CloseThreshold)
	if err != nil {
		return errors.Wrapf(err, "bad PAYMENT.CloseThreshold %q", cfg.PAYMENT.CloseThreshold)
	}

	db, err := database.Open(cfg.DBSQLITE.DB)
	if err != nil {
		return errors.Wrap(err, "failed database.Open()")
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.REDIS.Addr,
		Password: cfg.REDIS.Password,
		DB:       cfg.REDIS.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// not fatal, the feed keeps retrying
		logger.Warnf("redis %s is not reachable yet: %v", cfg.REDIS.Addr, err)
	}
	changes := feed.NewRedis(rdb, cfg.SERVICE.BusinessID, cfg.SERVICE.TerminalName)

	notifier, err := telegram.NewNotifier(cfg.TELEGRAM.BotToken, cfg.TELEGRAM.ChatID, cfg.TELEGRAM.Debug == 1, cfg.SERVICE.TerminalName)
	if err != nil {
		return errors.Wrap(err, "failed telegram.NewNotifier()")
	}

	menu, err := cache.NewCacheMenu(ctx, catalog.NewRepository(db, time.Local), time.Duration(cfg.CACHE.TimeUpdate)*time.Second)
	if err != nil {
		return errors.Wrap(err, "failed cache.NewCacheMenu()")
	}

	orders := ledger.New(orderline.NewRepository(db), changes, ledger.Options{
		BusinessID: cfg.SERVICE.BusinessID,
		Window:     time.Duration(cfg.LEDGER.SkewWindowHours) * time.Hour,
		Tolerance:  time.Duration(cfg.LEDGER.SkewToleranceMs) * time.Millisecond,
	})
	sessions := session.NewManager(tablesession.NewRepository(db), orders, changes, cfg.SERVICE.BusinessID)
	splitter := split.New(orders, sessions, split.Options{
		Retries:       cfg.SPLIT.Retries,
		RequireReason: cfg.ACTIONS.RequireReason,
		Terminal:      cfg.SERVICE.TerminalName,
	})
	payments := payment.NewReconciler(paymentrepo.NewRepository(db), orders, splitter, sessions, notifier, payment.Options{
		AutoClose:      cfg.PAYMENT.AutoClose,
		Tolerance:      tolerance,
		CloseThreshold: closeThreshold,
	})
	terminal := pos.NewTerminal(pos.Options{
		BusinessID: cfg.SERVICE.BusinessID,
		Terminal:   cfg.SERVICE.TerminalName,
		TTL:        time.Duration(cfg.CACHE.TimeUpdate) * time.Second,
	}, menu, orders, sessions, splitter, payments, notifier)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.SERVICE.PORT),
		Handler:           httphandler.NewRouter(httphandler.NewHandler(terminal, notifier)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "failed ListenAndServe()")
		}
		return nil
	})
	g.Go(func() error {
		return tsync.FeedServiceWithRecovered(ctx, changes, terminal, notifier, 3)
	})
	g.Go(func() error {
		tsync.MenuRefreshService(ctx, menu, time.Duration(cfg.CACHE.TimeUpdate)*time.Second)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	notifier.SendMessageWithLogError(fmt.Sprintf("[%s] TableSide %s started", cfg.SERVICE.TerminalName, version.GetVersion().String()))
	return g.Wait()
}
