package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/apiclient"
	"github.com/ariefcatur/go-table-checkout/internal/config"
	kafkax "github.com/ariefcatur/go-table-checkout/internal/kafka"
	"github.com/ariefcatur/go-table-checkout/internal/logx"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/ariefcatur/go-table-checkout/internal/payments"
	"github.com/ariefcatur/go-table-checkout/internal/postgres"
	"github.com/ariefcatur/go-table-checkout/internal/reconcile"
	"github.com/ariefcatur/go-table-checkout/internal/redisx"
	"github.com/ariefcatur/go-table-checkout/internal/syncpoll"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		logx.New("checkout-reconciler", "info").Error("config", "err", err)
		os.Exit(1)
	}
	name := cfg.ServiceName + "-reconciler"
	log := logx.New(name, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.Options{MaxConns: 4})
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

	prodCtx, stopProducer := context.WithCancel(context.Background())
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 256, log.With("component", "producer"))
	prod.Start(prodCtx)

	journal := &payments.PgJournal{DB: db}
	svc := &reconcile.Service{
		Reconciler: &payments.Wallet{Config: cfg.Wallet, Journal: journal, Log: log.With("component", "wallet")},
		Journal:    journal,
		Backend:    apiclient.New(cfg.Backend, log.With("component", "backend")),
		Redis:      rdb,
		Events:     prod,
		Name:       name,
		Log:        log,
	}

	group := getenv("RECONCILER_GROUP", "checkout-reconciler")
	workers := mustAtoi(os.Getenv("RECONCILER_WORKERS"), "4")
	sweepAge, err := time.ParseDuration(getenv("RECONCILER_SWEEP_AGE", "2m"))
	if err != nil {
		log.Error("RECONCILER_SWEEP_AGE", "err", err)
		os.Exit(1)
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicReservationPending, workers, log)

	// the sweep settles holds still open in the journal and captures the backend never confirmed
	sweep := syncpoll.NewLoop(sweepAge, func(ctx context.Context) error {
		n, err := svc.Sweep(ctx, sweepAge)
		if n > 0 {
			log.Info("sweep settled reservations", "count", n)
		}
		return err
	}, log.With("component", "sweep"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("reconciler consumer started", "group", group, "topic", orders.TopicReservationPending, "workers", workers)
		return cons.Start(gctx, svc.HandleReservationPending)
	})
	g.Go(func() error {
		sweep.Run(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error("consumer exit", "err", err)
	}

	log.Info("shutting down")
	prod.Close()
	stopProducer()
	prod.WaitClosed()
}
