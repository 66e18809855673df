package handler

import (
	"errors"
	"net/http"

	"casalar/internal/apierror"
	"casalar/internal/dto"
	"casalar/internal/repository"
	"casalar/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CreditoHandler struct {
	svc       service.CreditoService
	filhoRepo repository.FilhoRepository
}

func NewCreditoHandler(svc service.CreditoService, filhoRepo repository.FilhoRepository) *CreditoHandler {
	return &CreditoHandler{svc: svc, filhoRepo: filhoRepo}
}

// Consumir debits a pedido against the filho's revolving credit.
// POST /v1/credito/consumir
func (h *CreditoHandler) Consumir(c *gin.Context) {
	var req dto.ConsumirCreditoRequest
	if !bindAndValidate(c, &req) {
		return
	}
	pedidoID, err := uuid.Parse(req.PedidoID)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("pedido_id inválido"))
		return
	}

	if err := h.svc.Consumir(c.Request.Context(), pedidoID); err != nil {
		var insuficiente *service.ErrCreditoInsuficiente
		var bloqueado *service.ErrFilhoBloqueado
		switch {
		case errors.As(err, &insuficiente):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"detail":     insuficiente.Error(),
				"necessario": insuficiente.Necessario,
				"disponivel": insuficiente.Disponivel,
				"faltante":   insuficiente.Faltante,
			})
		case errors.As(err, &bloqueado):
			c.JSON(http.StatusForbidden, apierror.New(bloqueado.Error()))
		case errors.Is(err, service.ErrFilhoInativo), errors.Is(err, service.ErrPedidoJaPago):
			c.JSON(http.StatusConflict, apierror.New(err.Error()))
		default:
			c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// Extrato returns the balance plus the full credit journal of one filho.
// GET /v1/filhos/:id/credito
func (h *CreditoHandler) Extrato(c *gin.Context) {
	filhoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("ID inválido"))
		return
	}
	filho, err := h.filhoRepo.FindByID(c.Request.Context(), filhoID)
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.New("Conta não encontrada"))
		return
	}
	transacoes, err := h.svc.Extrato(c.Request.Context(), filhoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("Erro ao consultar extrato"))
		return
	}

	resp := dto.ExtratoCreditoResponse{
		Saldo: dto.SaldoCreditoResponse{
			FilhoID:            filho.ID.String(),
			Limite:             filho.CreditoLimite,
			Utilizado:          filho.CreditoUtilizado,
			Disponivel:         filho.CreditoDisponivel(),
			BloqueadoPorDivida: filho.BloqueadoPorDivida,
			MotivoBloqueio:     filho.MotivoBloqueio,
		},
	}
	for _, t := range transacoes {
		resp.Transacoes = append(resp.Transacoes, dto.TransacaoCreditoResponse{
			Tipo:           t.Tipo,
			Valor:          t.Valor,
			SaldoAnterior:  t.SaldoAnterior,
			SaldoPosterior: t.SaldoPosterior,
			Descricao:      t.Descricao,
			CriadaEm:       t.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}
