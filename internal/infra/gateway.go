package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is the external payment provider seen by the engine. Implementations
// must translate provider failures into ErrGatewayIndisponivel (transient) or
// RecusaGateway (terminal) — provider-specific errors never cross this boundary.
type Gateway interface {
	CriarPagamento(ctx context.Context, req GatewayRequisicao) (*GatewayResposta, error)
	ConsultarPagamento(ctx context.Context, gatewayID string) (*GatewayResposta, error)
	CancelarPagamento(ctx context.Context, gatewayID string) error
}

// ErrGatewayIndisponivel marks transient provider failures (5xx / timeout).
// Callers map it to cobranca status "erro" and retry by policy.
var ErrGatewayIndisponivel = errors.New("gateway indisponível")

// RecusaGateway is a terminal provider rejection (4xx business refusal).
type RecusaGateway struct {
	Codigo  int
	Detalhe string
}

func (e *RecusaGateway) Error() string {
	return fmt.Sprintf("gateway recusou o pagamento: %s (HTTP %d)", e.Detalhe, e.Codigo)
}

// GatewayRequisicao is the outbound payment creation request.
type GatewayRequisicao struct {
	Valor             decimal.Decimal `json:"transaction_amount"`
	Descricao         string          `json:"description"`
	Metodo            string          `json:"payment_method_id"` // "pix" | "credit_card" | "debit_card"
	TokenCartao       string          `json:"token,omitempty"`
	EmailPagador      string          `json:"payer_email,omitempty"`
	ReferenciaExterna string          `json:"external_reference"`
	ExpiraEm          *time.Time      `json:"date_of_expiration,omitempty"`
}

// GatewayResposta is the opaque provider payload. The engine reads only the
// fields below; Raw keeps the full body verbatim for audit.
type GatewayResposta struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"` // approved | pending | in_process | rejected | cancelled
	StatusDetalhe  string          `json:"status_detail"`
	ValorTransacao decimal.Decimal `json:"transaction_amount"`
	Pix            struct {
		QRCode       string `json:"qr_code"`
		QRCodeBase64 string `json:"qr_code_base64"`
		CopiaECola   string `json:"ticket_url"`
	} `json:"point_of_interaction"`
	Raw json.RawMessage `json:"-"`
}

// Aprovada reports whether the provider considers the payment settled.
func (r *GatewayResposta) Aprovada() bool { return r.Status == "approved" }

const gatewayMaxTentativas = 3

// HTTPGateway talks to the provider REST API. Every call goes through the
// circuit breaker; transient failures (5xx, timeouts) are retried with
// exponential backoff up to gatewayMaxTentativas.
type HTTPGateway struct {
	baseURL    string
	token      string
	cb         *CircuitBreaker
	httpClient *http.Client
}

func NewHTTPGateway(baseURL, token string, cb *CircuitBreaker) *HTTPGateway {
	return &HTTPGateway{
		baseURL:    baseURL,
		token:      token,
		cb:         cb,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CriarPagamento POSTs a new payment. The idempotency key travels in
// X-Idempotency-Key so network-level retries cannot double-charge; it is the
// caller's ChaveIdempotencia, stable per cobranca creation attempt.
func (g *HTTPGateway) CriarPagamento(ctx context.Context, req GatewayRequisicao) (*GatewayResposta, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal requisicao: %w", err)
	}
	return g.doJSON(ctx, http.MethodPost, "/v1/payments", body, req.ReferenciaExterna)
}

func (g *HTTPGateway) ConsultarPagamento(ctx context.Context, gatewayID string) (*GatewayResposta, error) {
	return g.doJSON(ctx, http.MethodGet, "/v1/payments/"+gatewayID, nil, "")
}

// CancelarPagamento marks a not-yet-captured card payment cancelled on the
// provider side. PIX has no remote cancel — callers never invoke this for PIX.
func (g *HTTPGateway) CancelarPagamento(ctx context.Context, gatewayID string) error {
	body := []byte(`{"status":"cancelled"}`)
	_, err := g.doJSON(ctx, http.MethodPut, "/v1/payments/"+gatewayID, body, "")
	return err
}

func (g *HTTPGateway) doJSON(ctx context.Context, method, path string, body []byte, idempotencyKey string) (*GatewayResposta, error) {
	var resp *GatewayResposta
	var tentativa int

	err := g.cb.Execute(func() error {
		var lastErr error
		for ; tentativa < gatewayMaxTentativas; tentativa++ {
			if tentativa > 0 {
				wait := time.Duration(1<<uint(tentativa-1)) * time.Second
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
				}
			}
			r, err := g.once(ctx, method, path, body, idempotencyKey)
			if err != nil {
				// only transient failures are retried
				if errors.Is(err, ErrGatewayIndisponivel) {
					lastErr = err
					continue
				}
				return err
			}
			resp = r
			return nil
		}
		return lastErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *HTTPGateway) once(ctx context.Context, method, path string, body []byte, idempotencyKey string) (*GatewayResposta, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("gateway: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	httpResp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayIndisponivel, err)
	}
	defer httpResp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(httpResp.Body); err != nil {
		return nil, fmt.Errorf("%w: lendo resposta: %v", ErrGatewayIndisponivel, err)
	}

	switch {
	case httpResp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", ErrGatewayIndisponivel, httpResp.StatusCode)
	case httpResp.StatusCode >= 400:
		return nil, &RecusaGateway{Codigo: httpResp.StatusCode, Detalhe: buf.String()}
	}

	var result GatewayResposta
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("gateway: decode resposta: %w", err)
	}
	result.Raw = json.RawMessage(buf.Bytes())
	return &result, nil
}
