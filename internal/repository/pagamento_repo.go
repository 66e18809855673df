package repository

import (
	"context"

	"casalar/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PagamentoRepository interface {
	CreateTx(ctx context.Context, tx *gorm.DB, p *model.Pagamento) error
	FindByGatewayIDTx(ctx context.Context, tx *gorm.DB, gatewayID string) (*model.Pagamento, error)
	// SumConfirmadosPorFaturaTx sums confirmed payments for an invoice,
	// excluding one payment id — used by the paid-amount recomputation to
	// avoid double counting the payment being confirmed right now.
	SumConfirmadosPorFaturaTx(ctx context.Context, tx *gorm.DB, faturaID uuid.UUID, exceto uuid.UUID) (decimal.Decimal, error)
	ListByFatura(ctx context.Context, faturaID uuid.UUID) ([]model.Pagamento, error)
}

type pagamentoRepo struct{ db *gorm.DB }

func NewPagamentoRepository(db *gorm.DB) PagamentoRepository { return &pagamentoRepo{db: db} }

func (r *pagamentoRepo) CreateTx(ctx context.Context, tx *gorm.DB, p *model.Pagamento) error {
	return tx.WithContext(ctx).Create(p).Error
}

func (r *pagamentoRepo) FindByGatewayIDTx(ctx context.Context, tx *gorm.DB, gatewayID string) (*model.Pagamento, error) {
	var p model.Pagamento
	err := tx.WithContext(ctx).Where("gateway_id = ?", gatewayID).First(&p).Error
	return &p, err
}

func (r *pagamentoRepo) SumConfirmadosPorFaturaTx(ctx context.Context, tx *gorm.DB, faturaID uuid.UUID, exceto uuid.UUID) (decimal.Decimal, error) {
	var soma decimal.NullDecimal
	err := tx.WithContext(ctx).Model(&model.Pagamento{}).
		Select("SUM(valor)").
		Where("fatura_id = ? AND id <> ?", faturaID, exceto).
		Scan(&soma).Error
	if err != nil || !soma.Valid {
		return decimal.Zero, err
	}
	return soma.Decimal, nil
}

func (r *pagamentoRepo) ListByFatura(ctx context.Context, faturaID uuid.UUID) ([]model.Pagamento, error) {
	var pagamentos []model.Pagamento
	err := r.db.WithContext(ctx).Where("fatura_id = ?", faturaID).
		Order("confirmado_em ASC").Find(&pagamentos).Error
	return pagamentos, err
}
