package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/apiclient"
	"github.com/ariefcatur/go-table-checkout/internal/cart"
	"github.com/ariefcatur/go-table-checkout/internal/checkout"
	"github.com/ariefcatur/go-table-checkout/internal/config"
	"github.com/ariefcatur/go-table-checkout/internal/httpx"
	kafkax "github.com/ariefcatur/go-table-checkout/internal/kafka"
	"github.com/ariefcatur/go-table-checkout/internal/logx"
	"github.com/ariefcatur/go-table-checkout/internal/payments"
	"github.com/ariefcatur/go-table-checkout/internal/postgres"
	"github.com/ariefcatur/go-table-checkout/internal/redisx"
	"github.com/ariefcatur/go-table-checkout/internal/syncpoll"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logx.New("checkout-bff", "info").Error("config", "err", err)
		os.Exit(1)
	}
	log := logx.New(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.Options{})
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db, payments.JournalSchema); err != nil {
		log.Error("db schema", "err", err)
		os.Exit(1)
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// the producer outlives ctx so shutdown can flush events from the last requests
	prodCtx, stopProducer := context.WithCancel(context.Background())
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.With("component", "producer"))
	prod.Start(prodCtx)

	backend := apiclient.New(cfg.Backend, log.With("component", "backend"))
	journal := &payments.PgJournal{DB: db}
	wallet := &payments.Wallet{Config: cfg.Wallet, Journal: journal, Log: log.With("component", "wallet")}
	gateways := payments.NewRegistry(
		payments.Cash{},
		&payments.Card{Config: cfg.Card},
		wallet,
		&payments.Device{Config: cfg.Device},
	)

	sessions := &checkout.Registry{
		Store:   &cart.RedisStore{Redis: rdb},
		IdleTTL: cfg.Checkout.SessionIdleTTL,
		New: func(*cart.Session) *checkout.Orchestrator {
			return &checkout.Orchestrator{
				API:      backend,
				Gateways: gateways,
				Guard:    &checkout.RedisGuard{Redis: rdb, TTL: cfg.Checkout.IdempotencyWindow},
				Events:   prod,
				Log:      log.With("component", "checkout"),
				Window:   cfg.Checkout.IdempotencyWindow,
				Service:  cfg.ServiceName,
			}
		},
	}

	views := &syncpoll.Views{
		Source:           backend,
		Observer:         &syncpoll.StatusSink{Redis: rdb, Events: prod, Service: cfg.ServiceName, Log: log},
		CustomerInterval: cfg.Polling.CustomerInterval,
		StaffInterval:    cfg.Polling.StaffInterval,
		IdleIntervals:    cfg.Polling.ViewIdleIntervals,
		MaxPerSubject:    cfg.Polling.ViewMaxPerSubject,
		Log:              log.With("component", "views"),
	}

	router := httpx.NewRouter()
	httpx.Register(router,
		&httpx.CartHandler{Sessions: sessions},
		&httpx.CheckoutHandler{Sessions: sessions, Wallet: wallet, Redis: rdb, Log: log},
		&httpx.OrdersHandler{API: backend, Redis: rdb, Log: log},
		&httpx.ViewsHandler{Views: views, Base: ctx},
	)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutCtx)
		views.CloseAll()
		return err
	})
	if err := g.Wait(); err != nil {
		log.Error("server exit", "err", err)
	}

	prod.Close()
	stopProducer()
	prod.WaitClosed()
}
