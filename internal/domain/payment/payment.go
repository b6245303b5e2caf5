// Package payment defines the narrow interface the checkout workflow uses to
// talk to payment gateways. Gateway internals live behind Provider
// implementations registered by method name.
package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrUnknownMethod is returned when no provider is registered for a
// requested payment method.
var ErrUnknownMethod = errors.New("unknown payment method")

// Result is the outcome of a payment attempt.
type Result struct {
	Success       bool
	TransactionID string
	Message       string
}

// Provider is the external collaborator invoked by the checkout workflow
// after an order is created.
type Provider interface {
	// ProcessPayment charges the given amount for an order. A declined
	// payment is reported via Result.Success=false, not an error; errors
	// are reserved for transport or gateway failures.
	ProcessPayment(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (Result, error)
	// CreateRefund refunds the given amount back to the customer.
	CreateRefund(ctx context.Context, orderID string, amount decimal.Decimal) error
}

// Registry maps payment method names to providers.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register binds a provider to a method name, replacing any previous binding.
func (r *Registry) Register(method string, p Provider) {
	r.providers[method] = p
}

// Get returns the provider for the given method or ErrUnknownMethod.
func (r *Registry) Get(method string) (Provider, error) {
	p, ok := r.providers[method]
	if !ok {
		return nil, fmt.Errorf("%q: %w", method, ErrUnknownMethod)
	}
	return p, nil
}

// DemoProvider approves every payment and refund. It stands in for real
// gateway adapters in development and tests.
type DemoProvider struct{}

func (DemoProvider) ProcessPayment(_ context.Context, _ string, _ decimal.Decimal, _ string) (Result, error) {
	return Result{
		Success:       true,
		TransactionID: "demo-" + uuid.New().String(),
		Message:       "payment approved",
	}, nil
}

func (DemoProvider) CreateRefund(_ context.Context, _ string, _ decimal.Decimal) error {
	return nil
}
