// Package catalog orchestrates the product and price lifecycle on top of
// the persistence gateway.
//
// Callers are expected to have passed the access policy and payload
// validation already; the service enforces referential integrity, not-found
// semantics and server-owned fields (ids and timestamps).
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fairyhunter13/product-catalog-service/internal/config"
	"github.com/fairyhunter13/product-catalog-service/internal/model"
	"github.com/fairyhunter13/product-catalog-service/internal/obs"
	"github.com/fairyhunter13/product-catalog-service/internal/store"
	"github.com/fairyhunter13/product-catalog-service/internal/validation"
)

// Repository is the persistence gateway used by the service.
type Repository interface {
	ListProducts(ctx context.Context, q store.ListQuery) ([]model.Product, int64, error)
	GetProduct(ctx context.Context, id int64) (model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) error
	UpdateProduct(ctx context.Context, p *model.Product) error
	DeleteProduct(ctx context.Context, id int64) error

	ListPrices(ctx context.Context, q store.ListQuery) ([]model.Price, int64, error)
	GetPrice(ctx context.Context, id int64) (model.Price, error)
	AddPrice(ctx context.Context, p *model.Price) error
	UpdatePrice(ctx context.Context, p *model.Price) error
	DeletePrice(ctx context.Context, id int64) error
}

// Service implements the catalog operations.
type Service struct {
	repo    Repository
	maxSize int
	now     func() time.Time
}

// NewService builds a Service; page sizes above cfg.PageSizeMax are clamped.
func NewService(repo Repository, cfg config.Config) *Service {
	return &Service{
		repo:    repo,
		maxSize: cfg.PageSizeMax,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) listQuery(req model.PageRequest, columns map[string]string) (store.ListQuery, error) {
	col, ok := columns[req.SortBy]
	if !ok {
		return store.ListQuery{}, validation.Invalid("sortBy", fmt.Sprintf("cannot sort by %q", req.SortBy))
	}
	if req.Index < 0 {
		return store.ListQuery{}, validation.Invalid("index", "must be greater than or equal to 0")
	}
	if req.Size < 1 {
		return store.ListQuery{}, validation.Invalid("size", "must be greater than or equal to 1")
	}
	size := req.Size
	if s.maxSize > 0 && size > s.maxSize {
		size = s.maxSize
	}
	if req.Index > math.MaxInt/size {
		return store.ListQuery{}, validation.Invalid("index", "is out of range")
	}
	return store.ListQuery{Offset: req.Index * size, Limit: size, SortColumn: col}, nil
}

func withPrices(p model.Product) model.Product {
	if p.Prices == nil {
		p.Prices = []model.Price{}
	}
	return p
}

// ListProducts returns one page of products sorted ascending by req.SortBy.
func (s *Service) ListProducts(ctx context.Context, req model.PageRequest) (model.Page[model.Product], error) {
	q, err := s.listQuery(req, model.ProductSortFields)
	if err != nil {
		return model.Page[model.Product]{}, err
	}
	items, total, err := s.repo.ListProducts(ctx, q)
	if err != nil {
		return model.Page[model.Product]{}, err
	}
	for i := range items {
		items[i] = withPrices(items[i])
	}
	return model.Page[model.Product]{Items: items, Total: total, Index: req.Index, Size: q.Limit}, nil
}

// GetProduct returns the product with its prices.
func (s *Service) GetProduct(ctx context.Context, id int64) (model.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Product{}, productNotFound(id)
	}
	if err != nil {
		return model.Product{}, err
	}
	return withPrices(p), nil
}

// CreateProduct stores p as a new product. Ids supplied by the client are
// discarded; the creation date of the product and of every initial price is
// set to now.
func (s *Service) CreateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	now := s.now()
	p.ID = 0
	p.CreationDate = now
	p.ModificationDate = nil
	for i := range p.Prices {
		p.Prices[i].ID = 0
		p.Prices[i].ProductID = 0
		p.Prices[i].CreationDate = now
		p.Prices[i].ModificationDate = nil
	}
	if err := s.repo.CreateProduct(ctx, &p); err != nil {
		return model.Product{}, err
	}
	obs.Logger.InfoContext(ctx, "product_created", "product_id", p.ID, "prices", len(p.Prices))
	return withPrices(p), nil
}

// UpdateProduct overwrites description and status of product id. A body id
// of zero takes the path id; any other mismatch is rejected.
func (s *Service) UpdateProduct(ctx context.Context, id int64, p model.Product) (model.Product, error) {
	if p.ID != 0 && p.ID != id {
		return model.Product{}, validation.Invalid("id", fmt.Sprintf("must match path id %d", id))
	}
	now := s.now()
	p.ID = id
	p.ModificationDate = &now
	p.Prices = nil
	err := s.repo.UpdateProduct(ctx, &p)
	if errors.Is(err, store.ErrNotFound) {
		return model.Product{}, productNotFound(id)
	}
	if err != nil {
		return model.Product{}, err
	}
	obs.Logger.InfoContext(ctx, "product_updated", "product_id", id)
	return withPrices(p), nil
}

// DeleteProduct removes product id and, with it, all of its prices.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	err := s.repo.DeleteProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return productNotFound(id)
	}
	if err != nil {
		return err
	}
	obs.Logger.InfoContext(ctx, "product_deleted", "product_id", id)
	return nil
}

// ListPrices returns one page of prices sorted ascending by req.SortBy.
func (s *Service) ListPrices(ctx context.Context, req model.PageRequest) (model.Page[model.Price], error) {
	q, err := s.listQuery(req, model.PriceSortFields)
	if err != nil {
		return model.Page[model.Price]{}, err
	}
	items, total, err := s.repo.ListPrices(ctx, q)
	if err != nil {
		return model.Page[model.Price]{}, err
	}
	if items == nil {
		items = []model.Price{}
	}
	return model.Page[model.Price]{Items: items, Total: total, Index: req.Index, Size: q.Limit}, nil
}

// GetPrice returns a single price.
func (s *Service) GetPrice(ctx context.Context, id int64) (model.Price, error) {
	p, err := s.repo.GetPrice(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Price{}, priceNotFound(id)
	}
	return p, err
}

// CreatePrice appends a new price to the referenced product and returns the
// stored record. A missing product yields a product NotFoundError and
// nothing is written.
func (s *Service) CreatePrice(ctx context.Context, req model.PriceRequest) (model.Price, error) {
	p := model.Price{
		ProductID:    req.ProductID,
		Amount:       req.Price,
		CreationDate: s.now(),
	}
	if req.Status != nil {
		p.Status = *req.Status
	}
	err := s.repo.AddPrice(ctx, &p)
	if errors.Is(err, store.ErrNotFound) {
		return model.Price{}, productNotFound(req.ProductID)
	}
	if err != nil {
		return model.Price{}, err
	}
	obs.Logger.InfoContext(ctx, "price_created", "price_id", p.ID, "product_id", p.ProductID)
	return p, nil
}

// UpdatePrice overwrites amount and status of price id. The owning product
// cannot be changed.
func (s *Service) UpdatePrice(ctx context.Context, id int64, p model.Price) (model.Price, error) {
	if p.ID != 0 && p.ID != id {
		return model.Price{}, validation.Invalid("id", fmt.Sprintf("must match path id %d", id))
	}
	existing, err := s.GetPrice(ctx, id)
	if err != nil {
		return model.Price{}, err
	}
	if p.ProductID != 0 && p.ProductID != existing.ProductID {
		return model.Price{}, validation.Invalid("productId", "cannot move a price to another product")
	}
	now := s.now()
	p.ID = id
	p.ModificationDate = &now
	err = s.repo.UpdatePrice(ctx, &p)
	if errors.Is(err, store.ErrNotFound) {
		return model.Price{}, priceNotFound(id)
	}
	if err != nil {
		return model.Price{}, err
	}
	obs.Logger.InfoContext(ctx, "price_updated", "price_id", id)
	return p, nil
}

// DeletePrice removes a single price; its product is untouched.
func (s *Service) DeletePrice(ctx context.Context, id int64) error {
	err := s.repo.DeletePrice(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return priceNotFound(id)
	}
	if err != nil {
		return err
	}
	obs.Logger.InfoContext(ctx, "price_deleted", "price_id", id)
	return nil
}
