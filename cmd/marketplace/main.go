package main

import (
	"flag"
	"os"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skillmarket/backend/internal/app/config"
	"github.com/skillmarket/backend/internal/app/server"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Config{
		RunAddress:             "localhost:8081",
		DatabaseURI:            "postgres://localhost:5432/skillmarket",
		ChargeRailAddress:      "http://localhost:8090",
		PayoutRailAddress:      "http://localhost:8091",
		ClientTimeout:          5,
		PollInterval:           60,
		MatureInterval:         300,
		WithdrawalCooldownDays: 7,
		HoldingPeriodDays:      7,
	}

	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("config parse failed")
	}

	flag.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "run address")
	flag.StringVar(&cfg.DatabaseURI, "d", cfg.DatabaseURI, "database URI")
	flag.StringVar(&cfg.ChargeRailAddress, "c", cfg.ChargeRailAddress, "charge rail address")
	flag.StringVar(&cfg.PayoutRailAddress, "p", cfg.PayoutRailAddress, "payout rail address")
	flag.StringVar(&cfg.WebhookSecret, "w", cfg.WebhookSecret, "webhook shared secret")
	flag.StringVar(&cfg.AdminToken, "t", cfg.AdminToken, "admin API token")
	flag.Parse()

	if cfg.WebhookSecret == "" || cfg.AdminToken == "" {
		log.Fatal().Msg("WEBHOOK_SECRET and ADMIN_TOKEN must be set")
	}

	if err := server.Serve(&cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
