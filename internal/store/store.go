// Package store is the persistence gateway: key-based CRUD and paginated
// listing over the product and price tables.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fairyhunter13/product-catalog-service/internal/config"
	"github.com/fairyhunter13/product-catalog-service/internal/model"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("record not found")

// ListQuery selects a bounded, ordered slice of a table.
type ListQuery struct {
	Offset     int
	Limit      int
	SortColumn string
	Desc       bool
}

// Store wraps a gorm handle.
type Store struct {
	db *gorm.DB
}

// Open connects to the database selected by cfg.DBDialect. MySQL DSNs need
// parseTime=true so timestamps scan into time.Time.
func Open(cfg config.Config, log *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDialect {
	case "postgres":
		dialector = postgres.Open(cfg.DBDSN)
	case "mysql":
		dialector = mysql.Open(cfg.DBDSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DBDSN)
	default:
		return nil, fmt.Errorf("unsupported db dialect %q", cfg.DBDialect)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(log),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DBDialect, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if cfg.DBMaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	return db, nil
}

// New returns a Store over db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the product and price tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&model.Product{}, &model.Price{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func paginate(q ListQuery) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: q.SortColumn}, Desc: q.Desc})
		if q.SortColumn != "id" {
			db = db.Order("id")
		}
		return db.Offset(q.Offset).Limit(q.Limit)
	}
}

func pricesByID(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ListProducts returns one page of products, each with its prices, and the
// total number of products.
func (s *Store) ListProducts(ctx context.Context, q ListQuery) ([]model.Product, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Product{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	var items []model.Product
	err := s.db.WithContext(ctx).
		Scopes(paginate(q)).
		Preload("Prices", pricesByID).
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return items, total, nil
}

// GetProduct loads a product with its prices.
func (s *Store) GetProduct(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	err := s.db.WithContext(ctx).Preload("Prices", pricesByID).First(&p, id).Error
	if err != nil {
		return model.Product{}, notFound(err)
	}
	return p, nil
}

// CreateProduct inserts p and any prices it carries; ids are written back.
func (s *Store) CreateProduct(ctx context.Context, p *model.Product) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// UpdateProduct overwrites description, status and modification date of the
// product p.ID, then reloads p from the store. Creation date and prices are
// left untouched.
func (s *Store) UpdateProduct(ctx context.Context, p *model.Product) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Product
		if err := tx.First(&existing, p.ID).Error; err != nil {
			return notFound(err)
		}
		err := tx.Model(&existing).Updates(map[string]any{
			"description":       p.Description,
			"product_status":    p.Status,
			"modification_date": p.ModificationDate,
		}).Error
		if err != nil {
			return fmt.Errorf("update product %d: %w", p.ID, err)
		}
		return tx.Preload("Prices", pricesByID).First(p, p.ID).Error
	})
}

// DeleteProduct removes the product and every price it owns in one
// transaction.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&model.Price{}).Error; err != nil {
			return fmt.Errorf("delete prices of product %d: %w", id, err)
		}
		res := tx.Delete(&model.Product{}, id)
		if res.Error != nil {
			return fmt.Errorf("delete product %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListPrices returns one page of prices and the total number of prices.
func (s *Store) ListPrices(ctx context.Context, q ListQuery) ([]model.Price, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Price{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count prices: %w", err)
	}
	var items []model.Price
	if err := s.db.WithContext(ctx).Scopes(paginate(q)).Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("list prices: %w", err)
	}
	return items, total, nil
}

// GetPrice loads a single price.
func (s *Store) GetPrice(ctx context.Context, id int64) (model.Price, error) {
	var p model.Price
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return model.Price{}, notFound(err)
	}
	return p, nil
}

// AddPrice appends p to the collection of product p.ProductID. It returns
// ErrNotFound, and writes nothing, when that product does not exist.
func (s *Store) AddPrice(ctx context.Context, p *model.Price) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner model.Product
		if err := tx.Select("id").First(&owner, p.ProductID).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("create price for product %d: %w", p.ProductID, err)
		}
		return nil
	})
}

// UpdatePrice overwrites amount, status and modification date of the price
// p.ID, then reloads p. The owning product and creation date are kept.
func (s *Store) UpdatePrice(ctx context.Context, p *model.Price) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Price
		if err := tx.First(&existing, p.ID).Error; err != nil {
			return notFound(err)
		}
		err := tx.Model(&existing).Updates(map[string]any{
			"amount":            p.Amount,
			"status":            p.Status,
			"modification_date": p.ModificationDate,
		}).Error
		if err != nil {
			return fmt.Errorf("update price %d: %w", p.ID, err)
		}
		return tx.First(p, p.ID).Error
	})
}

// DeletePrice removes a single price.
func (s *Store) DeletePrice(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&model.Price{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete price %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
