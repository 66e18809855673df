package service

import "context"

// Notificacao is a best-effort outbound customer message. AtrasoSegundos is a
// randomized delay applied by the worker before delivery.
type Notificacao struct {
	Destinatario   string `json:"destinatario"`
	Assunto        string `json:"assunto"`
	Corpo          string `json:"corpo"`
	AtrasoSegundos int    `json:"atraso_segundos"`
}

// Notificador enqueues notifications outside the financial transaction
// boundary. Implementations must never block settlement: an enqueue failure
// is the caller's to log and swallow.
type Notificador interface {
	Enviar(ctx context.Context, n Notificacao) error
}
