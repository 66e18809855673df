package infra

import (
	"fmt"

	"casalar/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate
// for all financial tables, then applies the idempotent SQL patches that GORM
// cannot express (partial indexes, the per-filho sequence).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}

	return db, nil
}

// RunMigrations creates / updates the schema. Also used by integration tests.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Filho{},
		&model.Pedido{},
		&model.PedidoItem{},
		&model.Fatura{},
		&model.FaturaItem{},
		&model.Cobranca{},
		&model.Pagamento{},
		&model.TransacaoCredito{},
		&model.WebhookEvento{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL that AutoMigrate cannot express.
func applySchemaPatches(db *gorm.DB) error {
	patches := []string{
		// sequence behind filhos.sequencial (invoice number prefix): new
		// accounts get the next value without an application-side counter
		`CREATE SEQUENCE IF NOT EXISTS filhos_sequencial_seq`,
		`ALTER TABLE filhos ALTER COLUMN sequencial SET DEFAULT nextval('filhos_sequencial_seq')`,
		`SELECT setval('filhos_sequencial_seq', GREATEST(
		    (SELECT COALESCE(MAX(sequencial), 0) FROM filhos),
		    (SELECT last_value FROM filhos_sequencial_seq)))`,
		// partial index for the webhook redelivery cron query
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_webhook_eventos_pendentes') THEN
		    CREATE INDEX idx_webhook_eventos_pendentes
		        ON webhook_eventos (proxima_tentativa)
		        WHERE status = 'recebido' AND proxima_tentativa IS NOT NULL;
		  END IF;
		END $$`,
		// partial index for the aggregation sweep — unbilled settled orders
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_pedidos_nao_faturados') THEN
		    CREATE INDEX idx_pedidos_nao_faturados
		        ON pedidos (filho_id, created_at)
		        WHERE faturado = false AND status IN ('pago', 'concluido');
		  END IF;
		END $$`,
		// one consumo invoice per filho per competencia, except cancelled ones
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'ux_faturas_filho_competencia_consumo') THEN
		    CREATE UNIQUE INDEX ux_faturas_filho_competencia_consumo
		        ON faturas (filho_id, competencia)
		        WHERE tipo = 'consumo' AND status <> 'cancelada';
		  END IF;
		END $$`,
	}

	for _, sql := range patches {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", sql[:min(len(sql), 60)], err)
		}
	}
	return nil
}
