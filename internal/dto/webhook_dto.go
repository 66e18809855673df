package dto

// WebhookGatewayRequest is the gateway's notification envelope. Only the
// payment id is read; the authoritative state comes from a follow-up query
// to the gateway itself.
type WebhookGatewayRequest struct {
	Action string `json:"action"` // e.g. payment.updated
	Type   string `json:"type"   validate:"required"`
	Data   struct {
		ID string `json:"id" validate:"required"`
	} `json:"data"`
}
