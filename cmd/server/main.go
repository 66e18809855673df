package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"casalar/internal/config"
	"casalar/internal/infra"
	"casalar/internal/relogio"
	"casalar/internal/repository"
	"casalar/internal/router"
	"casalar/internal/service"
	"casalar/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Structured logger — dev: pretty, prod: JSON
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

	// One circuit breaker instance guards every call to the payment gateway:
	// synchronous charges, status polls and webhook redeliveries.
	gatewayCB := infra.NewCircuitBreaker(infra.DefaultCBConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background machinery is wired here (composition root) so the worker
	// pool and the crons share the same infrastructure as the HTTP layer.
	mailer := infra.NewMailer(cfg)
	gateway := infra.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayToken, gatewayCB)
	rel := relogio.Sistema{}

	filhoRepo := repository.NewFilhoRepository(db)
	pedidoRepo := repository.NewPedidoRepository(db)
	faturaRepo := repository.NewFaturaRepository(db)
	cobrancaRepo := repository.NewCobrancaRepository(db)
	pagamentoRepo := repository.NewPagamentoRepository(db)
	transacaoRepo := repository.NewTransacaoRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)

	dispatcher := worker.NewDispatcher(rdb)
	creditoSvc := service.NewCreditoService(filhoRepo, pedidoRepo, faturaRepo, transacaoRepo, dispatcher, rel)
	faturamentoSvc := service.NewFaturamentoService(pedidoRepo, faturaRepo, filhoRepo, dispatcher, rel, cfg.FaturaPrefixo, cfg.DiasUteisVencimento)
	liquidacaoSvc := service.NewLiquidacaoService(cobrancaRepo, pagamentoRepo, pedidoRepo, faturaRepo, creditoSvc, dispatcher, rel)
	inadimplenciaSvc := service.NewInadimplenciaService(faturaRepo, filhoRepo, rel, cfg.MultaPct, cfg.JurosDiaPct, cfg.LimiteInadimplencia)

	worker.StartWorkerPool(ctx, rdb, cfg.WorkerPoolSize, worker.Handlers{
		Notificacao: worker.NewNotificacaoWorker(mailer, rdb),
	})

	webhookProcessor := worker.NewWebhookProcessor(
		webhookRepo, cobrancaRepo, gateway, liquidacaoSvc, rdb,
		cfg.WebhookMaxRetries, time.Duration(cfg.WebhookBackoffSecs)*time.Second,
	)
	worker.StartWebhookRetryCron(ctx, webhookProcessor, gatewayCB)

	worker.NewRotinasCron(faturamentoSvc, inadimplenciaSvc, rel).Start(ctx)

	r := router.New(cfg, db, rdb, gatewayCB)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("casalar backend listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}
