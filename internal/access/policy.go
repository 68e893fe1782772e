// Package access maps catalog operations to the capability a caller needs
// to run them.
package access

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Capability is a named permission carried by an authenticated principal.
type Capability string

const (
	ProductCreator Capability = "ROLE_PRODUCT_CREATORS"
	ProductManager Capability = "ROLE_PRODUCT_MANAGERS"
	ProductPricing Capability = "ROLE_PRODUCT_PRICING"
)

// Operation identifies one catalog operation.
type Operation string

const (
	ListProducts  Operation = "list_products"
	GetProduct    Operation = "get_product"
	CreateProduct Operation = "create_product"
	UpdateProduct Operation = "update_product"
	DeleteProduct Operation = "delete_product"
	ListPrices    Operation = "list_prices"
	GetPrice      Operation = "get_price"
	CreatePrice   Operation = "create_price"
	UpdatePrice   Operation = "update_price"
	DeletePrice   Operation = "delete_price"
)

var (
	// ErrUnauthenticated is returned when an operation needs a principal and
	// none is present.
	ErrUnauthenticated = errors.New("full authentication is required to access this resource")
	// ErrForbidden is returned when the principal lacks the capability.
	ErrForbidden = errors.New("access is denied")
)

// RequirementKind tags a Requirement.
type RequirementKind int

const (
	// Authenticated accepts any principal.
	Authenticated RequirementKind = iota + 1
	// HasCapability accepts principals holding Requirement.Capability.
	HasCapability
)

// Requirement is what a principal must satisfy to run an operation.
type Requirement struct {
	Kind       RequirementKind
	Capability Capability
}

func authenticated() Requirement { return Requirement{Kind: Authenticated} }

func capability(c Capability) Requirement { return Requirement{Kind: HasCapability, Capability: c} }

// Policy is the static requirement table. Operations missing from it are
// denied.
var Policy = map[Operation]Requirement{
	ListProducts:  authenticated(),
	GetProduct:    authenticated(),
	CreateProduct: capability(ProductCreator),
	UpdateProduct: capability(ProductManager),
	DeleteProduct: capability(ProductManager),
	ListPrices:    authenticated(),
	GetPrice:      authenticated(),
	CreatePrice:   capability(ProductPricing),
	UpdatePrice:   capability(ProductPricing),
	DeletePrice:   capability(ProductPricing),
}

// Principal is the authenticated caller.
type Principal struct {
	Subject      string
	ClientID     string
	Capabilities []Capability
}

// Has reports whether the principal holds c.
func (p *Principal) Has(c Capability) bool {
	return p != nil && slices.Contains(p.Capabilities, c)
}

// Check decides whether p may run op.
func Check(p *Principal, op Operation) error {
	req, ok := Policy[op]
	if !ok {
		return fmt.Errorf("%w: no policy for %s", ErrForbidden, op)
	}
	if p == nil {
		return ErrUnauthenticated
	}
	switch req.Kind {
	case Authenticated:
		return nil
	case HasCapability:
		if p.Has(req.Capability) {
			return nil
		}
		return fmt.Errorf("%w: %s requires %s", ErrForbidden, op, req.Capability)
	default:
		return fmt.Errorf("%w: unknown requirement for %s", ErrForbidden, op)
	}
}

type ctxKey int

const ctxKeyPrincipal ctxKey = iota

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFrom returns the principal stored in ctx, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKeyPrincipal).(*Principal)
	return p
}

// Authorize checks the principal carried by ctx against op.
func Authorize(ctx context.Context, op Operation) error {
	return Check(PrincipalFrom(ctx), op)
}
