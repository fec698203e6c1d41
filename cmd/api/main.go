package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-crypto-shop/internal/admin"
	"github.com/ariefcatur/go-crypto-shop/internal/checkout"
	"github.com/ariefcatur/go-crypto-shop/internal/config"
	"github.com/ariefcatur/go-crypto-shop/internal/gateway"
	"github.com/ariefcatur/go-crypto-shop/internal/httpx"
	kafkax "github.com/ariefcatur/go-crypto-shop/internal/kafka"
	"github.com/ariefcatur/go-crypto-shop/internal/logging"
	"github.com/ariefcatur/go-crypto-shop/internal/memory"
	"github.com/ariefcatur/go-crypto-shop/internal/metrics"
	"github.com/ariefcatur/go-crypto-shop/internal/notify"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/ariefcatur/go-crypto-shop/internal/payment"
	"github.com/ariefcatur/go-crypto-shop/internal/postgres"
	"github.com/ariefcatur/go-crypto-shop/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

type store interface {
	checkout.Store
	httpx.Store
	admin.Store
	payment.Store
}

type dispatcher interface {
	payment.Dispatcher
	admin.CancelNotifier
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.Must(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if cfg.Gateway.SecretKey == "" {
		log.Warn("gateway_secret_missing", zap.String("effect", "every webhook will be rejected"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Store
	var st store
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("memory_store", zap.String("effect", "state is lost on restart"))
		st = memory.NewStore()
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PGMaxConns)
		if err != nil {
			log.Fatal("db_connect_failed", zap.Error(err))
		}
		defer db.Close()
		st = &postgres.Repo{DB: db}
	default:
		log.Fatal("unknown_store_driver", zap.String("driver", cfg.StoreDriver))
	}

	// Redis: side cache saja, boleh mati
	var cache *redisx.Cache
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Warn("redis_unavailable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	} else {
		cache = redisx.NewCache(rdb)
	}

	// Notifications: lewat Kafka, atau langsung in-process untuk mode memory
	var (
		disp dispatcher
		prod *kafkax.Producer
	)
	if cfg.StoreDriver == "memory" {
		var sender notify.Sender = notify.LogSender{}
		if cfg.TelegramToken != "" {
			sender = notify.NewTelegramSender(cfg.TelegramToken, 10*time.Second)
		}
		disp = notify.Direct{Deliverer: &notify.Deliverer{Sender: sender, Admins: cfg.Admins, Metrics: m}}
	} else {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderEvents, 1024, log)
		prod.Start(ctx)
		disp = notify.NewKafkaDispatcher(prod, cfg.ServiceName)
	}

	// Handlers
	router := httpx.NewRouter(log, reg)
	(&httpx.OrdersHandler{
		Store:    st,
		Checkout: &checkout.Service{Store: st, Gateway: gateway.NewClient(cfg.Gateway, m), Metrics: m},
		Cache:    cache,
	}).Register(router)
	(&httpx.WebhookHandler{Reconciler: &payment.Reconciler{
		Verifier:   gateway.NewSigner(cfg.Gateway.SecretKey),
		Store:      st,
		Dispatcher: disp,
		Cache:      cache,
		Metrics:    m,
	}}).Register(router)
	(&httpx.AdminHandler{
		Admin:  &admin.Service{Store: st, Cache: cache, Notifier: disp},
		Admins: cfg.Admins,
		Token:  cfg.AdminToken,
	}).Register(router)
	if cfg.AdminToken == "" {
		log.Warn("admin_api_disabled", zap.String("reason", "ADMIN_TOKEN not set"))
	}

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("http_listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver), zap.Int("admins", cfg.Admins.Len()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen_failed", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting_down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if prod != nil {
		prod.Close()      // stop terima pesan -> flush & close writer
		prod.WaitClosed() // drain
	}
	cancel()
}
