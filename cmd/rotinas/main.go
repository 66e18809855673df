package main

import (
	"context"
	"os"
	"time"

	"casalar/internal/config"
	"casalar/internal/infra"
	"casalar/internal/relogio"
	"casalar/internal/repository"
	"casalar/internal/service"
	"casalar/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Runs the daily billing routines once and exits: monthly consumption
// invoicing, late charges and defaulter blocks. Meant for an external
// scheduler (cron, k8s CronJob) when the in-process cron is not wanted.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	rel := relogio.Sistema{}
	filhoRepo := repository.NewFilhoRepository(db)
	pedidoRepo := repository.NewPedidoRepository(db)
	faturaRepo := repository.NewFaturaRepository(db)

	dispatcher := worker.NewDispatcher(rdb)
	faturamentoSvc := service.NewFaturamentoService(pedidoRepo, faturaRepo, filhoRepo, dispatcher, rel, cfg.FaturaPrefixo, cfg.DiasUteisVencimento)
	inadimplenciaSvc := service.NewInadimplenciaService(faturaRepo, filhoRepo, rel, cfg.MultaPct, cfg.JurosDiaPct, cfg.LimiteInadimplencia)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	worker.NewRotinasCron(faturamentoSvc, inadimplenciaSvc, rel).Executar(ctx)
	log.Info().Msg("rotinas concluídas")
}
