package repository

import (
	"context"
	"time"

	"casalar/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CobrancaRepository interface {
	Create(ctx context.Context, c *model.Cobranca) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Cobranca, error)
	FindByGatewayID(ctx context.Context, gatewayID string) (*model.Cobranca, error)
	LockByIDTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Cobranca, error)
	Update(ctx context.Context, c *model.Cobranca) error
	UpdateTx(ctx context.Context, tx *gorm.DB, c *model.Cobranca) error
	// FindPixPendente returns a reusable pending, non-expired PIX cobranca for
	// the same target, if one exists.
	FindPixPendente(ctx context.Context, pedidoID, faturaID *uuid.UUID, agora time.Time) (*model.Cobranca, error)
	DB() *gorm.DB
}

type cobrancaRepo struct{ db *gorm.DB }

func NewCobrancaRepository(db *gorm.DB) CobrancaRepository { return &cobrancaRepo{db: db} }

func (r *cobrancaRepo) DB() *gorm.DB { return r.db }

func (r *cobrancaRepo) Create(ctx context.Context, c *model.Cobranca) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *cobrancaRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Cobranca, error) {
	var c model.Cobranca
	err := r.db.WithContext(ctx).First(&c, id).Error
	return &c, err
}

func (r *cobrancaRepo) FindByGatewayID(ctx context.Context, gatewayID string) (*model.Cobranca, error) {
	var c model.Cobranca
	err := r.db.WithContext(ctx).Where("gateway_id = ?", gatewayID).First(&c).Error
	return &c, err
}

func (r *cobrancaRepo) LockByIDTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Cobranca, error) {
	var c model.Cobranca
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, id).Error
	return &c, err
}

func (r *cobrancaRepo) Update(ctx context.Context, c *model.Cobranca) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *cobrancaRepo) UpdateTx(ctx context.Context, tx *gorm.DB, c *model.Cobranca) error {
	return tx.WithContext(ctx).Save(c).Error
}

func (r *cobrancaRepo) FindPixPendente(ctx context.Context, pedidoID, faturaID *uuid.UUID, agora time.Time) (*model.Cobranca, error) {
	q := r.db.WithContext(ctx).
		Where("metodo = 'pix'").
		Where("status IN ('criada', 'pendente')").
		Where("expira_em IS NULL OR expira_em > ?", agora)
	if pedidoID != nil {
		q = q.Where("pedido_id = ?", *pedidoID)
	} else {
		q = q.Where("fatura_id = ?", *faturaID)
	}
	var c model.Cobranca
	err := q.Order("created_at DESC").First(&c).Error
	return &c, err
}
