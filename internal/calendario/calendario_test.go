package calendario

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func dia(ano int, mes time.Month, d int) time.Time {
	return time.Date(ano, mes, d, 0, 0, 0, 0, time.UTC)
}

func TestDomingoDePascoa(t *testing.T) {
	// Known Easter dates
	assert.Equal(t, dia(2024, time.March, 31), DomingoDePascoa(2024))
	assert.Equal(t, dia(2025, time.April, 20), DomingoDePascoa(2025))
	assert.Equal(t, dia(2026, time.April, 5), DomingoDePascoa(2026))
}

func TestEhFeriado(t *testing.T) {
	assert.True(t, EhFeriado(dia(2025, time.January, 1)))
	assert.True(t, EhFeriado(dia(2025, time.December, 25)))
	// Sexta-feira Santa 2025 = 18/04
	assert.True(t, EhFeriado(dia(2025, time.April, 18)))
	// Carnaval 2025 = 04/03 (terça)
	assert.True(t, EhFeriado(dia(2025, time.March, 4)))
	// Corpus Christi 2025 = 19/06
	assert.True(t, EhFeriado(dia(2025, time.June, 19)))

	assert.False(t, EhFeriado(dia(2025, time.March, 10)))
}

func TestEhDiaUtil(t *testing.T) {
	assert.False(t, EhDiaUtil(dia(2025, time.August, 30))) // sábado
	assert.False(t, EhDiaUtil(dia(2025, time.August, 31))) // domingo
	assert.False(t, EhDiaUtil(dia(2025, time.September, 7)))
	assert.True(t, EhDiaUtil(dia(2025, time.August, 29)))
}

func TestAdicionarDiasUteis(t *testing.T) {
	// Sexta 29/08/2025 + 1 dia útil = segunda 01/09
	assert.Equal(t, dia(2025, time.September, 1), AdicionarDiasUteis(dia(2025, time.August, 29), 1))
	// Quinta 04/09/2025 + 2 dias úteis pula sábado/domingo/feriado (07/09 é domingo)
	assert.Equal(t, dia(2025, time.September, 8), AdicionarDiasUteis(dia(2025, time.September, 4), 2))
	// Atravessa Natal: segunda 22/12/2025 + 3 dias úteis = sexta 26/12
	assert.Equal(t, dia(2025, time.December, 26), AdicionarDiasUteis(dia(2025, time.December, 22), 3))
}
