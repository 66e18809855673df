package handler

import (
	"net/http"

	"casalar/internal/apierror"
	"casalar/internal/dto"
	"casalar/internal/model"
	"casalar/internal/repository"
	"casalar/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type FaturasHandler struct {
	faturamento   service.FaturamentoService
	faturaRepo    repository.FaturaRepository
	pagamentoRepo repository.PagamentoRepository
}

func NewFaturasHandler(faturamento service.FaturamentoService, faturaRepo repository.FaturaRepository, pagamentoRepo repository.PagamentoRepository) *FaturasHandler {
	return &FaturasHandler{faturamento: faturamento, faturaRepo: faturaRepo, pagamentoRepo: pagamentoRepo}
}

// GerarConsumo triggers the monthly aggregation sweep on demand. Idempotent
// per filho+competencia, so re-triggering is harmless.
// POST /v1/faturas/gerar-consumo
func (h *FaturasHandler) GerarConsumo(c *gin.Context) {
	geradas, err := h.faturamento.GerarFaturasConsumo(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("Erro ao gerar faturas de consumo"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"faturas_geradas": geradas})
}

// GerarAssinatura creates the flat recurring invoice for one filho.
// POST /v1/faturas/assinatura
func (h *FaturasHandler) GerarAssinatura(c *gin.Context) {
	var req dto.GerarAssinaturaRequest
	if !bindAndValidate(c, &req) {
		return
	}
	filhoID, err := uuid.Parse(req.FilhoID)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("filho_id inválido"))
		return
	}
	fatura, err := h.faturamento.GerarFaturaAssinatura(c.Request.Context(), filhoID, req.Valor)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, faturaParaResponse(fatura, nil))
}

// Obter returns one invoice with items and confirmed payments.
// GET /v1/faturas/:id
func (h *FaturasHandler) Obter(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("ID inválido"))
		return
	}
	fatura, err := h.faturaRepo.FindByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.New("Fatura não encontrada"))
		return
	}
	pagamentos, _ := h.pagamentoRepo.ListByFatura(c.Request.Context(), fatura.ID)
	c.JSON(http.StatusOK, faturaParaResponse(fatura, pagamentos))
}

// ListarPorFilho returns every invoice of one filho, newest first.
// GET /v1/filhos/:id/faturas
func (h *FaturasHandler) ListarPorFilho(c *gin.Context) {
	filhoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("ID inválido"))
		return
	}
	faturas, err := h.faturaRepo.ListByFilho(c.Request.Context(), filhoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("Erro ao listar faturas"))
		return
	}
	resp := dto.FaturaListResponse{Data: make([]dto.FaturaResponse, 0, len(faturas))}
	for i := range faturas {
		resp.Data = append(resp.Data, faturaParaResponse(&faturas[i], nil))
	}
	c.JSON(http.StatusOK, resp)
}

func faturaParaResponse(f *model.Fatura, pagamentos []model.Pagamento) dto.FaturaResponse {
	resp := dto.FaturaResponse{
		ID:          f.ID.String(),
		Numero:      f.Numero,
		Tipo:        f.Tipo,
		Competencia: f.Competencia,
		Status:      f.Status,
		Subtotal:    f.Subtotal,
		Desconto:    f.Desconto,
		Multa:       f.Multa,
		Juros:       f.Juros,
		ValorTotal:  f.ValorTotal,
		ValorPago:   f.ValorPago,
		Vencimento:  f.Vencimento,
	}
	for _, item := range f.Itens {
		resp.Itens = append(resp.Itens, dto.FaturaItemResponse{
			Descricao:     item.Descricao,
			Quantidade:    item.Quantidade,
			PrecoUnitario: item.PrecoUnitario,
			Subtotal:      item.Subtotal,
		})
	}
	for _, p := range pagamentos {
		resp.Pagamentos = append(resp.Pagamentos, dto.PagamentoResponse{
			ID:           p.ID.String(),
			Metodo:       p.Metodo,
			Valor:        p.Valor,
			ConfirmadoEm: p.ConfirmadoEm,
		})
	}
	return resp
}
