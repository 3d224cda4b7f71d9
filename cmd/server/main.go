package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"

	"github.com/walletgo/walletgo"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// A missing .env is fine; the config file carries the defaults.
	_ = godotenv.Load()

	var cfg walletgo.Config
	cfp := flag.String("config", "config.yml", "path to configuration file")
	flag.Parse()
	cfgfl, err := os.Open(*cfp)
	if err != nil {
		logger.Fatal().Err(err).Msg("error opening config file")
	}
	if err = yaml.NewDecoder(cfgfl).Decode(&cfg); err != nil {
		logger.Fatal().Err(err).Msg("error decoding config file")
	}
	cfgfl.Close()
	if dburl := os.Getenv("DATABASE_URL"); dburl != "" {
		cfg.Database.ConnectionString = dburl
	}

	pgendpt, err := walletgo.NewPostgresEndpoint(cfg.Database.ConnectionString, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("error starting database")
	}
	defer pgendpt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err = pgendpt.InitSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("error initializing schema")
	}
	cancel()

	var cache *walletgo.BalanceCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		cache = walletgo.NewBalanceCache(rdb, 30*time.Second, &logger)
	}

	var notif walletgo.Notifier = walletgo.NopNotifier{}
	if cfg.Notify.WebhookURL != "" {
		notif = walletgo.NewWebhookNotifier(cfg.Notify.WebhookURL, &logger)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		logger.Fatal().Err(err).Msg("error starting snowflake node")
	}

	svc, err := walletgo.NewService(pgendpt, node, notif, cache, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("error starting service")
	}

	limits := &walletgo.ServiceLimits{
		Pay:          semaphore.NewWeighted(orDefault(cfg.Limits.Pay, 64)),
		AdminCredit:  semaphore.NewWeighted(orDefault(cfg.Limits.AdminCredit, 16)),
		Transactions: semaphore.NewWeighted(orDefault(cfg.Limits.Transactions, 64)),
	}
	brkrs := &walletgo.ServiceBreaker{
		Pay:          gobreaker.NewTwoStepCircuitBreaker[*walletgo.Transaction](gobreaker.Settings{Name: "pay"}),
		AdminCredit:  gobreaker.NewTwoStepCircuitBreaker[*walletgo.Account](gobreaker.Settings{Name: "credit"}),
		Transactions: gobreaker.NewTwoStepCircuitBreaker[[]walletgo.Transaction](gobreaker.Settings{Name: "query"}),
	}
	chained := walletgo.Chain(
		svc,
		walletgo.NewCircuitBreakMiddleware(brkrs),
		walletgo.NewLimitMiddleware(limits),
		walletgo.NewValidationMiddleware(pgendpt, cfg.Roles.Payer, cfg.Roles.Payee),
	)

	rpt := walletgo.NewReporter(chained)
	hndlr := walletgo.NewHTTPHandler(chained, rpt, &logger)

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":3000"
	}
	logger.Info().Str("addr", addr).Msg("server listening")
	if err = http.ListenAndServe(addr, hndlr); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func orDefault(v, d int64) int64 {
	if v > 0 {
		return v
	}
	return d
}
