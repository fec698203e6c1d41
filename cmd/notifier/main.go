package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-crypto-shop/internal/config"
	kafkax "github.com/ariefcatur/go-crypto-shop/internal/kafka"
	"github.com/ariefcatur/go-crypto-shop/internal/logging"
	"github.com/ariefcatur/go-crypto-shop/internal/metrics"
	"github.com/ariefcatur/go-crypto-shop/internal/notify"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/ariefcatur/go-crypto-shop/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.Must(cfg.ServiceName+"-notifier", cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(logging.WithContext(context.Background(), log))
	defer cancel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// Redis untuk dedup event
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Fatal("redis_unavailable", zap.Error(err))
	}

	var sender notify.Sender = notify.LogSender{}
	if cfg.TelegramToken != "" {
		sender = notify.NewTelegramSender(cfg.TelegramToken, 10*time.Second)
	} else {
		log.Warn("telegram_token_missing", zap.String("effect", "messages are only logged"))
	}
	h := &notify.Handler{
		Deliverer: &notify.Deliverer{Sender: sender, Admins: cfg.Admins, Metrics: m},
		Dedup:     redisx.NewDedup(rdb, "notifier"),
	}

	// metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: getenv("NOTIFIER_METRICS_ADDR", ":9102"), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics_listen_failed", zap.Error(err))
		}
	}()

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifyGroup, orders.TopicOrderEvents, cfg.NotifyWorkers, log)
	go func() {
		log.Info("notifier_started",
			zap.String("group", cfg.NotifyGroup), zap.String("topic", orders.TopicOrderEvents), zap.Int("workers", cfg.NotifyWorkers))
		if err := cons.Start(ctx, h.Handle); err != nil {
			log.Error("consumer_exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting_down")
	cancel()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
