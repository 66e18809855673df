package handler

import (
	"errors"
	"net/http"

	"casalar/internal/apierror"
	"casalar/internal/dto"
	"casalar/internal/model"
	"casalar/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CobrancasHandler struct{ svc service.CobrancaService }

func NewCobrancasHandler(svc service.CobrancaService) *CobrancasHandler {
	return &CobrancasHandler{svc: svc}
}

// Criar creates a gateway charge (PIX or card) for a pedido or fatura.
// POST /v1/cobrancas
func (h *CobrancasHandler) Criar(c *gin.Context) {
	var req dto.CriarCobrancaRequest
	if !bindAndValidate(c, &req) {
		return
	}

	alvo, err := parseAlvo(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}

	var cobranca *model.Cobranca
	switch req.Metodo {
	case "pix":
		cobranca, err = h.svc.CriarPix(c.Request.Context(), alvo)
	default:
		if req.TokenCartao == nil {
			c.JSON(http.StatusUnprocessableEntity, apierror.New("token_cartao é obrigatório para pagamento com cartão"))
			return
		}
		cobranca, err = h.svc.CriarCartao(c.Request.Context(), alvo, *req.TokenCartao, req.Metodo)
	}
	if err != nil {
		c.JSON(statusParaErro(err), apierror.New(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, cobrancaParaResponse(cobranca))
}

// Consultar polls the charge status, settling it when the gateway reports
// approval. GET /v1/cobrancas/:id
func (h *CobrancasHandler) Consultar(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("ID inválido"))
		return
	}
	cobranca, err := h.svc.ConsultarStatus(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.New(err.Error()))
		return
	}
	c.JSON(http.StatusOK, cobrancaParaResponse(cobranca))
}

// Retentar re-submits a charge stuck in "erro".
// POST /v1/cobrancas/:id/retentar
func (h *CobrancasHandler) Retentar(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("ID inválido"))
		return
	}
	cobranca, err := h.svc.Retentar(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusParaErro(err), apierror.New(err.Error()))
		return
	}
	c.JSON(http.StatusOK, cobrancaParaResponse(cobranca))
}

// Cancelar cancels a non-final charge.
// DELETE /v1/cobrancas/:id
func (h *CobrancasHandler) Cancelar(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("ID inválido"))
		return
	}
	if err := h.svc.Cancelar(c.Request.Context(), id); err != nil {
		c.JSON(statusParaErro(err), apierror.New(err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func parseAlvo(req dto.CriarCobrancaRequest) (service.AlvoCobranca, error) {
	var alvo service.AlvoCobranca
	if req.PedidoID != nil {
		id, err := uuid.Parse(*req.PedidoID)
		if err != nil {
			return alvo, errors.New("pedido_id inválido")
		}
		alvo.PedidoID = &id
	}
	if req.FaturaID != nil {
		id, err := uuid.Parse(*req.FaturaID)
		if err != nil {
			return alvo, errors.New("fatura_id inválido")
		}
		alvo.FaturaID = &id
	}
	return alvo, nil
}

func statusParaErro(err error) int {
	switch {
	case errors.Is(err, service.ErrPedidoJaPago),
		errors.Is(err, service.ErrFaturaJaPaga),
		errors.Is(err, service.ErrCobrancaCancelada),
		errors.Is(err, service.ErrCobrancaFinal):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func cobrancaParaResponse(c *model.Cobranca) dto.CobrancaResponse {
	return dto.CobrancaResponse{
		ID:            c.ID.String(),
		Metodo:        c.Metodo,
		Status:        c.Status,
		StatusDetalhe: c.StatusDetalhe,
		Valor:         c.Valor,
		Tentativas:    c.Tentativas,
		PixQRCode:     c.PixQRCode,
		PixCopiaECola: c.PixCopiaECola,
		ExpiraEm:      c.ExpiraEm,
		CriadaEm:      c.CreatedAt,
	}
}
