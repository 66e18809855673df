package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrCreditoInsuficiente carries the exact shortfall so the caller can show
// the user how much is missing.
type ErrCreditoInsuficiente struct {
	Necessario decimal.Decimal
	Disponivel decimal.Decimal
	Faltante   decimal.Decimal
}

func (e *ErrCreditoInsuficiente) Error() string {
	return fmt.Sprintf("crédito insuficiente: necessário %s, disponível %s, faltam %s",
		e.Necessario.StringFixed(2), e.Disponivel.StringFixed(2), e.Faltante.StringFixed(2))
}

// ErrFilhoBloqueado surfaces the stored block reason verbatim.
type ErrFilhoBloqueado struct {
	Motivo string
}

func (e *ErrFilhoBloqueado) Error() string {
	if e.Motivo == "" {
		return "conta bloqueada por débito em aberto"
	}
	return "conta bloqueada: " + e.Motivo
}

var (
	ErrFilhoInativo      = errors.New("a conta não está ativa")
	ErrPedidoJaPago      = errors.New("o pedido já está pago")
	ErrFaturaJaPaga      = errors.New("a fatura já está paga")
	ErrCobrancaCancelada = errors.New("a cobrança já está cancelada")
	ErrCobrancaFinal     = errors.New("a cobrança está em estado final")
)
