package worker

// rotinas_cron.go
// Daily financial routines: monthly invoice aggregation and the delinquency
// sweep. Every routine is idempotent, so re-running after a restart is safe.

import (
	"context"
	"time"

	"casalar/internal/relogio"
	"casalar/internal/service"

	"github.com/rs/zerolog/log"
)

const rotinasTickInterval = 1 * time.Hour

// RotinasCron drives FaturamentoService and InadimplenciaService once per
// calendar day. The hourly tick exists only to catch the day rollover.
type RotinasCron struct {
	faturamento   service.FaturamentoService
	inadimplencia service.InadimplenciaService
	relogio       relogio.Relogio

	ultimaExecucao string // YYYY-MM-DD of the last completed run
}

func NewRotinasCron(faturamento service.FaturamentoService, inadimplencia service.InadimplenciaService, rel relogio.Relogio) *RotinasCron {
	return &RotinasCron{faturamento: faturamento, inadimplencia: inadimplencia, relogio: rel}
}

// Start launches the cron goroutine. The first run happens on the next tick
// after startup, not immediately, so a crash-looping process does not spin
// the batches.
func (c *RotinasCron) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(rotinasTickInterval)
		defer ticker.Stop()

		log.Info().Msg("rotinas_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("rotinas_cron: shutting down")
				return
			case <-ticker.C:
				c.tick(ctx)
			}
		}
	}()
}

func (c *RotinasCron) tick(ctx context.Context) {
	hoje := c.relogio.Agora().Format("2006-01-02")
	if hoje == c.ultimaExecucao {
		return
	}
	c.Executar(ctx)
	c.ultimaExecucao = hoje
}

// Executar runs the full daily batch once. Also invoked directly by the
// rotinas CLI. Failures in one routine never stop the next.
func (c *RotinasCron) Executar(ctx context.Context) {
	inicio := time.Now()

	geradas, err := c.faturamento.GerarFaturasConsumo(ctx)
	if err != nil {
		log.Error().Err(err).Msg("rotinas_cron: geração de faturas falhou")
	} else if geradas > 0 {
		log.Info().Int("faturas", geradas).Msg("rotinas_cron: faturas de consumo geradas")
	}

	encargos, err := c.inadimplencia.AplicarEncargos(ctx)
	if err != nil {
		log.Error().Err(err).Msg("rotinas_cron: aplicação de encargos falhou")
	} else if encargos > 0 {
		log.Info().Int("faturas", encargos).Msg("rotinas_cron: encargos aplicados")
	}

	if err := c.inadimplencia.AtualizarBloqueios(ctx); err != nil {
		log.Error().Err(err).Msg("rotinas_cron: atualização de bloqueios falhou")
	}

	log.Info().Dur("duracao", time.Since(inicio)).Msg("rotinas_cron: lote diário concluído")
}
