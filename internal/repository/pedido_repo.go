package repository

import (
	"context"
	"time"

	"casalar/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PedidoRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Pedido, error)
	LockByIDTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Pedido, error)
	UpdateTx(ctx context.Context, tx *gorm.DB, p *model.Pedido) error
	// ListNaoFaturados returns unbilled, settled orders of active filhos
	// created at or before the cutoff, items preloaded.
	ListNaoFaturados(ctx context.Context, cutoff time.Time) ([]model.Pedido, error)
	// LockNaoFaturadosTx re-selects the same set for one filho FOR UPDATE,
	// defending against concurrent settlement during aggregation.
	LockNaoFaturadosTx(ctx context.Context, tx *gorm.DB, filhoID uuid.UUID, cutoff time.Time) ([]model.Pedido, error)
	MarcarFaturadosTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, faturaID uuid.UUID) error
	DB() *gorm.DB
}

type pedidoRepo struct{ db *gorm.DB }

func NewPedidoRepository(db *gorm.DB) PedidoRepository { return &pedidoRepo{db: db} }

func (r *pedidoRepo) DB() *gorm.DB { return r.db }

func (r *pedidoRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Pedido, error) {
	var p model.Pedido
	err := r.db.WithContext(ctx).Preload("Itens").Preload("Filho").First(&p, id).Error
	return &p, err
}

func (r *pedidoRepo) LockByIDTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Pedido, error) {
	var p model.Pedido
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, id).Error
	return &p, err
}

func (r *pedidoRepo) UpdateTx(ctx context.Context, tx *gorm.DB, p *model.Pedido) error {
	return tx.WithContext(ctx).Save(p).Error
}

func (r *pedidoRepo) ListNaoFaturados(ctx context.Context, cutoff time.Time) ([]model.Pedido, error) {
	var pedidos []model.Pedido
	err := r.db.WithContext(ctx).
		Joins("JOIN filhos ON filhos.id = pedidos.filho_id AND filhos.status = 'ativo'").
		Where("pedidos.faturado = false").
		Where("pedidos.status IN ('pago', 'concluido')").
		Where("pedidos.created_at <= ?", cutoff).
		Preload("Itens").
		Order("pedidos.filho_id, pedidos.created_at").
		Find(&pedidos).Error
	return pedidos, err
}

func (r *pedidoRepo) LockNaoFaturadosTx(ctx context.Context, tx *gorm.DB, filhoID uuid.UUID, cutoff time.Time) ([]model.Pedido, error) {
	var pedidos []model.Pedido
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("filho_id = ?", filhoID).
		Where("faturado = false").
		Where("status IN ('pago', 'concluido')").
		Where("created_at <= ?", cutoff).
		Find(&pedidos).Error
	if err != nil {
		return nil, err
	}
	// Itens loaded separately — FOR UPDATE cannot be combined with the join preload.
	for i := range pedidos {
		if err := tx.WithContext(ctx).Where("pedido_id = ?", pedidos[i].ID).Find(&pedidos[i].Itens).Error; err != nil {
			return nil, err
		}
	}
	return pedidos, nil
}

func (r *pedidoRepo) MarcarFaturadosTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, faturaID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Model(&model.Pedido{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"faturado": true, "fatura_id": faturaID}).Error
}
