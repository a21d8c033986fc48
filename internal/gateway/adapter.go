package gateway

import (
	"fmt"

	"keyshop-service/internal/models"
)

// PaymentIntent is the provider-specific reference handed back to the client
// so it can complete payment externally. Building an intent has no side
// effects on the order.
type PaymentIntent struct {
	TradeNo   string `json:"trade_no"`
	Provider  string `json:"provider"`
	PayURL    string `json:"pay_url,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// VerifiedCallback is the provider-neutral result of authenticating a raw
// callback payload against the gateway's secret.
type VerifiedCallback struct {
	TradeNo    string // our order trade number
	AccessCode string // the provider's idempotency token
	Amount     int64  // minor units
	Succeeded  bool
}

// Adapter abstracts one payment provider protocol
type Adapter interface {
	Provider() string
	BuildIntent(order *models.Order, gw *models.Gateway, returnURL string) (*PaymentIntent, error)
	VerifyCallback(raw []byte, gw *models.Gateway) (*VerifiedCallback, error)
}

// Registry holds the configured adapters keyed by provider name
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an adapter registry
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

// Lookup returns the adapter for a gateway's provider
func (r *Registry) Lookup(provider string) (Adapter, error) {
	a, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("no adapter for provider %q: %w", provider, models.ErrGatewayUnavailable)
	}
	return a, nil
}
