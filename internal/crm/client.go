package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client empuja contactos y pedidos al CRM externo. La interfaz permite
// un stub en tests y un no-op cuando el CRM no está configurado.
type Client interface {
	// UpsertContact crea o actualiza el contacto asociado al pedido.
	UpsertContact(ctx context.Context, c Contact) error
}

// Contact is the minimal projection the CRM cares about.
type Contact struct {
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	OrderNumber string `json:"order_number,omitempty"`
}

// Options configura el cliente HTTP del CRM.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New devuelve un cliente HTTP contra el CRM.
func New(opts Options) Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) UpsertContact(ctx context.Context, contact Contact) error {
	body, err := json.Marshal(contact)
	if err != nil {
		return fmt.Errorf("crm: marshal contact: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/contacts", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("crm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("crm: upsert contact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("crm: upsert contact: status %d: %s", resp.StatusCode, string(msg))
}

// NopClient descarta todas las llamadas. Útil cuando el CRM está deshabilitado.
type NopClient struct{}

func (NopClient) UpsertContact(context.Context, Contact) error { return nil }
