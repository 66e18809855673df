package model

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvento stores every inbound gateway notification with deduplication
// and redelivery metadata.
// Status: "recebido" | "processado" | "falho"
type WebhookEvento struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	EventType string    `gorm:"type:varchar(50);not null"`
	// GatewayPagamentoID is the provider's payment id carried by the event.
	GatewayPagamentoID string     `gorm:"index;not null"`
	PayloadRaw         string     `gorm:"type:jsonb;not null"`
	AssinaturaValida   bool       `gorm:"not null;default:false"`
	Status             string     `gorm:"type:varchar(15);not null;default:'recebido'"`
	Tentativas         int        `gorm:"not null;default:0"`
	ProximaTentativa   *time.Time `gorm:"index"`
	UltimoErro         *string
	ProcessadoEm       *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TableName overrides GORM's default pluralization.
func (WebhookEvento) TableName() string { return "webhook_eventos" }
