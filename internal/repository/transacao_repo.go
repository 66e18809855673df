package repository

import (
	"context"

	"casalar/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransacaoRepository writes the append-only credit journal. There is no
// Update or Delete on purpose — corrections are new entries.
type TransacaoRepository interface {
	CreateTx(ctx context.Context, tx *gorm.DB, t *model.TransacaoCredito) error
	ListByFilho(ctx context.Context, filhoID uuid.UUID) ([]model.TransacaoCredito, error)
}

type transacaoRepo struct{ db *gorm.DB }

func NewTransacaoRepository(db *gorm.DB) TransacaoRepository { return &transacaoRepo{db: db} }

func (r *transacaoRepo) CreateTx(ctx context.Context, tx *gorm.DB, t *model.TransacaoCredito) error {
	return tx.WithContext(ctx).Create(t).Error
}

func (r *transacaoRepo) ListByFilho(ctx context.Context, filhoID uuid.UUID) ([]model.TransacaoCredito, error) {
	var transacoes []model.TransacaoCredito
	err := r.db.WithContext(ctx).Where("filho_id = ?", filhoID).
		Order("created_at ASC").Find(&transacoes).Error
	return transacoes, err
}
