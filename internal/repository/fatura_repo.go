package repository

import (
	"context"
	"time"

	"casalar/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FaturaRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Fatura, error)
	LockByIDTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Fatura, error)
	// ExisteConsumoTx checks for a non-cancelled consumo invoice of
	// filho+competencia — the aggregation idempotency guard.
	ExisteConsumoTx(ctx context.Context, tx *gorm.DB, filhoID uuid.UUID, competencia string) (bool, error)
	CreateTx(ctx context.Context, tx *gorm.DB, f *model.Fatura) error
	Update(ctx context.Context, f *model.Fatura) error
	UpdateTx(ctx context.Context, tx *gorm.DB, f *model.Fatura) error
	// MaiorSequencia returns the highest numeric suffix among invoice numbers
	// starting with prefixo (e.g. "FAT-12-202509-"); 0 when none exist.
	MaiorSequencia(ctx context.Context, tx *gorm.DB, prefixo string) (int, error)
	// ListVencidasEmAberto returns every overdue invoice still carrying an
	// open balance, whether or not the late fee was already applied.
	ListVencidasEmAberto(ctx context.Context, hoje time.Time) ([]model.Fatura, error)
	// ContarVencidasPorFilho returns filho id → count of overdue, unpaid invoices.
	ContarVencidasPorFilho(ctx context.Context) (map[uuid.UUID]int64, error)
	ListByFilho(ctx context.Context, filhoID uuid.UUID) ([]model.Fatura, error)
	DB() *gorm.DB
}

type faturaRepo struct{ db *gorm.DB }

func NewFaturaRepository(db *gorm.DB) FaturaRepository { return &faturaRepo{db: db} }

func (r *faturaRepo) DB() *gorm.DB { return r.db }

func (r *faturaRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Fatura, error) {
	var f model.Fatura
	err := r.db.WithContext(ctx).Preload("Itens").First(&f, id).Error
	return &f, err
}

func (r *faturaRepo) LockByIDTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Fatura, error) {
	var f model.Fatura
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&f, id).Error
	return &f, err
}

func (r *faturaRepo) ExisteConsumoTx(ctx context.Context, tx *gorm.DB, filhoID uuid.UUID, competencia string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&model.Fatura{}).
		Where("filho_id = ? AND competencia = ? AND tipo = 'consumo' AND status <> 'cancelada'", filhoID, competencia).
		Count(&count).Error
	return count > 0, err
}

func (r *faturaRepo) CreateTx(ctx context.Context, tx *gorm.DB, f *model.Fatura) error {
	return tx.WithContext(ctx).Create(f).Error
}

func (r *faturaRepo) Update(ctx context.Context, f *model.Fatura) error {
	return r.db.WithContext(ctx).Save(f).Error
}

func (r *faturaRepo) UpdateTx(ctx context.Context, tx *gorm.DB, f *model.Fatura) error {
	return tx.WithContext(ctx).Save(f).Error
}

func (r *faturaRepo) MaiorSequencia(ctx context.Context, tx *gorm.DB, prefixo string) (int, error) {
	// The suffix after the last '-' is the per-period sequence.
	var max *int
	err := tx.WithContext(ctx).Model(&model.Fatura{}).
		Select(`MAX(CAST(split_part(numero, '-', -1) AS INTEGER))`).
		Where("numero LIKE ?", prefixo+"%").
		Scan(&max).Error
	if err != nil || max == nil {
		return 0, err
	}
	return *max, nil
}

func (r *faturaRepo) ListVencidasEmAberto(ctx context.Context, hoje time.Time) ([]model.Fatura, error) {
	var faturas []model.Fatura
	err := r.db.WithContext(ctx).
		Where("vencimento < ?", hoje).
		Where("status NOT IN ('paga', 'cancelada')").
		Find(&faturas).Error
	return faturas, err
}

func (r *faturaRepo) ContarVencidasPorFilho(ctx context.Context) (map[uuid.UUID]int64, error) {
	rows := []struct {
		FilhoID uuid.UUID
		Total   int64
	}{}
	err := r.db.WithContext(ctx).Model(&model.Fatura{}).
		Select("filho_id, COUNT(*) AS total").
		Where("status = 'vencida'").
		Group("filho_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		out[row.FilhoID] = row.Total
	}
	return out, nil
}

func (r *faturaRepo) ListByFilho(ctx context.Context, filhoID uuid.UUID) ([]model.Fatura, error) {
	var faturas []model.Fatura
	err := r.db.WithContext(ctx).Where("filho_id = ?", filhoID).
		Order("created_at DESC").Find(&faturas).Error
	return faturas, err
}
