package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/walletgo/walletgo"
)

// Seeds the schema and a demo account per role so a fresh deployment has
// something to pay with.
func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

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

	pgendpt, err := walletgo.NewPostgresEndpoint(cfg.Database.ConnectionString, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("error starting database")
	}
	defer pgendpt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err = pgendpt.InitSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("error initializing schema")
	}

	node, err := snowflake.NewNode(111)
	if err != nil {
		logger.Fatal().Err(err).Msg("error starting snowflake node")
	}

	seeds := []struct {
		username string
		role     walletgo.Role
		balance  decimal.Decimal
	}{
		{"admin", walletgo.RoleAdmin, decimal.Zero},
		{"employee", walletgo.RoleEmployee, decimal.NewFromInt(500)},
		{"canteen", walletgo.RoleVendor, decimal.Zero},
	}
	for _, s := range seeds {
		acct, err := pgendpt.CreateAccount(ctx, walletgo.CreateAccountReq{
			AcctID:   node.Generate(),
			Username: s.username,
			Role:     s.role,
		})
		if err != nil {
			logger.Fatal().Err(err).Str("username", s.username).Msg("error seeding account")
		}
		if s.balance.IsPositive() {
			if _, err = pgendpt.AdjustBalance(ctx, acct.ID, s.balance); err != nil {
				logger.Fatal().Err(err).Str("username", s.username).Msg("error funding account")
			}
		}
		logger.Info().
			Str("username", s.username).
			Str("id", acct.ID.String()).
			Msg("account seeded")
	}
}
