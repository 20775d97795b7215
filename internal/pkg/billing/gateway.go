package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Gateway is the payment-provider surface the billing core depends on.
// The HTTP implementation talks to the hosted gateway; tests inject fakes.
type Gateway interface {
	CreateCustomer(ctx context.Context, name, email string) (string, error)
	CreateInvoice(ctx context.Context, customerRef string, amount int64, description string) (string, error)
	FinalizeInvoice(ctx context.Context, invoiceRef string) error
	ChargeInvoice(ctx context.Context, invoiceRef string) error
}

// HTTPGateway implements Gateway against the provider's REST API.
type HTTPGateway struct {
	BaseURL    string
	APIKey     string
	Livemode   bool
	HTTPClient *http.Client
}

// NewGateway creates the HTTP gateway client from billing config.
func NewGateway(cfg Config) *HTTPGateway {
	return &HTTPGateway{
		BaseURL:  cfg.GatewayBaseURL,
		APIKey:   cfg.GatewayAPIKey,
		Livemode: cfg.Livemode(),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type gatewayCustomerResponse struct {
	ID string `json:"id"`
}

type gatewayInvoiceResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (g *HTTPGateway) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	body := map[string]interface{}{"name": name, "email": email, "livemode": g.Livemode}
	var resp gatewayCustomerResponse
	if err := g.post(ctx, "create_customer", "/v1/customers", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (g *HTTPGateway) CreateInvoice(ctx context.Context, customerRef string, amount int64, description string) (string, error) {
	body := map[string]interface{}{
		"customer":    customerRef,
		"amount":      amount,
		"currency":    "eur",
		"description": description,
	}
	var resp gatewayInvoiceResponse
	if err := g.post(ctx, "create_invoice", "/v1/invoices", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (g *HTTPGateway) FinalizeInvoice(ctx context.Context, invoiceRef string) error {
	return g.post(ctx, "finalize_invoice", "/v1/invoices/"+invoiceRef+"/finalize", nil, nil)
}

func (g *HTTPGateway) ChargeInvoice(ctx context.Context, invoiceRef string) error {
	return g.post(ctx, "charge_invoice", "/v1/invoices/"+invoiceRef+"/pay", nil, nil)
}

func (g *HTTPGateway) post(ctx context.Context, op, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+g.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return &GatewayError{Op: op, Status: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &GatewayError{Op: op, Status: resp.StatusCode, Body: string(raw)}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
	}
	return nil
}
