package repository

import (
	"context"

	"casalar/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FilhoRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Filho, error)
	// LockByIDTx re-reads the row FOR UPDATE inside tx. Every read-modify-write
	// of CreditoUtilizado goes through this lock.
	LockByIDTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Filho, error)
	UpdateTx(ctx context.Context, tx *gorm.DB, f *model.Filho) error
	ListBloqueadosPorDivida(ctx context.Context) ([]model.Filho, error)
	AtualizarBloqueio(ctx context.Context, id uuid.UUID, bloqueado bool, motivo *string) error
	DB() *gorm.DB
}

type filhoRepo struct{ db *gorm.DB }

func NewFilhoRepository(db *gorm.DB) FilhoRepository { return &filhoRepo{db: db} }

func (r *filhoRepo) DB() *gorm.DB { return r.db }

func (r *filhoRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Filho, error) {
	var f model.Filho
	err := r.db.WithContext(ctx).First(&f, id).Error
	return &f, err
}

func (r *filhoRepo) LockByIDTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Filho, error) {
	var f model.Filho
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&f, id).Error
	return &f, err
}

func (r *filhoRepo) UpdateTx(ctx context.Context, tx *gorm.DB, f *model.Filho) error {
	return tx.WithContext(ctx).Save(f).Error
}

func (r *filhoRepo) ListBloqueadosPorDivida(ctx context.Context) ([]model.Filho, error) {
	var filhos []model.Filho
	err := r.db.WithContext(ctx).Where("bloqueado_por_divida = true").Find(&filhos).Error
	return filhos, err
}

func (r *filhoRepo) AtualizarBloqueio(ctx context.Context, id uuid.UUID, bloqueado bool, motivo *string) error {
	return r.db.WithContext(ctx).Model(&model.Filho{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"bloqueado_por_divida": bloqueado,
			"motivo_bloqueio":      motivo,
		}).Error
}
