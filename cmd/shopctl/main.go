package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ariefcatur/go-crypto-shop/internal/admin"
	"github.com/ariefcatur/go-crypto-shop/internal/config"
	kafkax "github.com/ariefcatur/go-crypto-shop/internal/kafka"
	"github.com/ariefcatur/go-crypto-shop/internal/logging"
	"github.com/ariefcatur/go-crypto-shop/internal/notify"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/ariefcatur/go-crypto-shop/internal/postgres"
	"github.com/ariefcatur/go-crypto-shop/internal/redisx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

// app opens connections lazily so every command only pays for what it uses.
type app struct {
	cfg  config.Config
	log  *zap.Logger
	out  io.Writer
	db   *pgxpool.Pool
	rdb  *redis.Client
	prod *kafkax.Producer
}

func main() {
	_ = godotenv.Load()

	a := &app{out: os.Stdout}
	rootCmd := &cobra.Command{
		Use:           "shopctl",
		Short:         "Operator tool for the crypto shop: schema, catalogue, orders",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log, err = logging.New(cfg.ServiceName+"-ctl", cfg.Env, cfg.LogLevel)
			if err != nil {
				return err
			}
			cmd.SetContext(logging.WithContext(cmd.Context(), a.log))
			return nil
		},
	}

	rootCmd.AddCommand(migrateCmd(a))
	rootCmd.AddCommand(productCmd(a))
	rootCmd.AddCommand(orderCmd(a))
	rootCmd.AddCommand(invoiceCmd(a))

	err := rootCmd.ExecuteContext(context.Background())
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) repo(ctx context.Context) (*postgres.Repo, error) {
	if a.db == nil {
		db, err := postgres.Connect(ctx, a.cfg.PostgresDSN, a.cfg.PGMaxConns)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.db = db
	}
	return &postgres.Repo{DB: a.db}, nil
}

// admin wires the same service the HTTP admin routes use. Redis and Kafka are
// optional here: without them the cache simply expires and no one is notified.
func (a *app) admin(ctx context.Context, withNotifier bool) (*admin.Service, error) {
	repo, err := a.repo(ctx)
	if err != nil {
		return nil, err
	}
	svc := &admin.Service{Store: repo, Cache: a.cache(ctx)}

	if withNotifier && len(a.cfg.KafkaBrokers) > 0 {
		a.prod = kafkax.NewProducer(a.cfg.KafkaBrokers, orders.TopicOrderEvents, 16, a.log)
		a.prod.Start(context.Background())
		svc.Notifier = notify.NewKafkaDispatcher(a.prod, a.cfg.ServiceName+"-ctl")
	}
	return svc, nil
}

// cache returns nil when redis is unreachable; a nil *redisx.Cache is a no-op.
func (a *app) cache(ctx context.Context) *redisx.Cache {
	if a.rdb == nil {
		rdb := redisx.New(a.cfg.RedisAddr)
		if err := redisx.Ping(ctx, rdb); err != nil {
			a.log.Warn("redis_unavailable", zap.Error(err))
			_ = rdb.Close()
			return nil
		}
		a.rdb = rdb
	}
	return redisx.NewCache(a.rdb)
}

func (a *app) close() {
	if a.prod != nil {
		a.prod.Close()
		a.prod.WaitClosed()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.repo(cmd.Context()); err != nil {
				return err
			}
			applied, err := postgres.Migrate(cmd.Context(), a.db)
			for _, name := range applied {
				fmt.Fprintf(a.out, "applied %s\n", name)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(a.out, "schema up to date")
			}
			return nil
		},
	}
}
