package router

import (
	"time"

	"casalar/internal/config"
	"casalar/internal/handler"
	"casalar/internal/infra"
	"casalar/internal/middleware"
	"casalar/internal/relogio"
	"casalar/internal/repository"
	"casalar/internal/service"
	"casalar/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, gatewayCB *infra.CircuitBreaker) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Infrastructure ───────────────────────────────────────────────────────
	gateway := infra.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayToken, gatewayCB)
	rel := relogio.Sistema{}

	// ── Repositories ─────────────────────────────────────────────────────────
	filhoRepo := repository.NewFilhoRepository(db)
	pedidoRepo := repository.NewPedidoRepository(db)
	faturaRepo := repository.NewFaturaRepository(db)
	cobrancaRepo := repository.NewCobrancaRepository(db)
	pagamentoRepo := repository.NewPagamentoRepository(db)
	transacaoRepo := repository.NewTransacaoRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)

	// Worker dispatcher — injected into services that enqueue async jobs
	dispatcher := worker.NewDispatcher(rdb)

	// ── Services ─────────────────────────────────────────────────────────────
	creditoSvc := service.NewCreditoService(filhoRepo, pedidoRepo, faturaRepo, transacaoRepo, dispatcher, rel)
	faturamentoSvc := service.NewFaturamentoService(pedidoRepo, faturaRepo, filhoRepo, dispatcher, rel, cfg.FaturaPrefixo, cfg.DiasUteisVencimento)
	liquidacaoSvc := service.NewLiquidacaoService(cobrancaRepo, pagamentoRepo, pedidoRepo, faturaRepo, creditoSvc, dispatcher, rel)
	cobrancaSvc := service.NewCobrancaService(cobrancaRepo, pedidoRepo, faturaRepo, gateway, liquidacaoSvc, rel, time.Duration(cfg.PixExpiracaoMin)*time.Minute)

	webhookProcessor := worker.NewWebhookProcessor(
		webhookRepo, cobrancaRepo, gateway, liquidacaoSvc, rdb,
		cfg.WebhookMaxRetries, time.Duration(cfg.WebhookBackoffSecs)*time.Second,
	)

	// ── Handlers ─────────────────────────────────────────────────────────────
	cobrancasH := handler.NewCobrancasHandler(cobrancaSvc)
	faturasH := handler.NewFaturasHandler(faturamentoSvc, faturaRepo, pagamentoRepo)
	creditoH := handler.NewCreditoHandler(creditoSvc, filhoRepo)
	webhooksH := handler.NewWebhooksHandler(webhookRepo, webhookProcessor, cfg.WebhookSecret)

	// ── Routes ───────────────────────────────────────────────────────────────

	r.GET("/health", handler.Health(db, rdb, gatewayCB))

	// Gateway callbacks carry their own HMAC authentication and a dedicated
	// rate limit so bursts of redeliveries never starve the API.
	r.POST("/v1/webhooks/gateway", middleware.WebhookRateLimiter(), webhooksH.Receber)

	v1 := r.Group("/v1")
	{
		cobrancas := v1.Group("/cobrancas")
		{
			cobrancas.POST("", cobrancasH.Criar)
			cobrancas.GET("/:id", cobrancasH.Consultar)
			cobrancas.POST("/:id/retentar", cobrancasH.Retentar)
			cobrancas.DELETE("/:id", cobrancasH.Cancelar)
		}

		faturas := v1.Group("/faturas")
		{
			faturas.POST("/gerar-consumo", faturasH.GerarConsumo)
			faturas.POST("/assinatura", faturasH.GerarAssinatura)
			faturas.GET("/:id", faturasH.Obter)
		}

		v1.POST("/credito/consumir", creditoH.Consumir)
		v1.GET("/filhos/:id/credito", creditoH.Extrato)
		v1.GET("/filhos/:id/faturas", faturasH.ListarPorFilho)
	}

	return r
}
