package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pedido is a sale, either against a Filho's credit line or a guest
// cash/card sale (FilhoID nil).
// Status: "pendente" | "pago" | "concluido" | "pronto_para_retirada" |
// "entregue" | "cancelado"
// Origem: "pdv" | "app"
type Pedido struct {
	ID      uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	FilhoID *uuid.UUID      `gorm:"type:uuid;index"`
	Origem  string          `gorm:"type:varchar(10);not null;default:'app'"`
	Total   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status  string          `gorm:"type:varchar(30);not null;default:'pendente'"`
	// MetodoPagamento: "credito_interno" | "pix" | "cartao_credito" | "cartao_debito"
	MetodoPagamento string `gorm:"type:varchar(20)"`
	// Faturado + FaturaID are set exactly once by the monthly aggregation.
	Faturado bool       `gorm:"not null;default:false;index"`
	FaturaID *uuid.UUID `gorm:"type:uuid;index"`
	// AguardandoPagamento marks orders waiting on an external gateway charge.
	AguardandoPagamento bool `gorm:"not null;default:false"`
	PagoEm              *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time

	Filho *Filho       `gorm:"foreignKey:FilhoID"`
	Itens []PedidoItem `gorm:"foreignKey:PedidoID"`
}

// PedidoItem is one line of a Pedido.
type PedidoItem struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	PedidoID      uuid.UUID       `gorm:"type:uuid;index;not null"`
	ProdutoID     uuid.UUID       `gorm:"type:uuid;not null"`
	Descricao     string          `gorm:"not null"`
	Quantidade    int             `gorm:"not null"`
	PrecoUnitario decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt     time.Time
}

// TableName overrides GORM's default pluralization (pedido_items → pedido_itens).
func (PedidoItem) TableName() string { return "pedido_itens" }
