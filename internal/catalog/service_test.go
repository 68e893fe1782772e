package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/go-extras/go-kit/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/product-catalog-service/internal/config"
	"github.com/fairyhunter13/product-catalog-service/internal/model"
	"github.com/fairyhunter13/product-catalog-service/internal/store"
	"github.com/fairyhunter13/product-catalog-service/internal/validation"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Config{DBDialect: "sqlite", DBDSN: ":memory:", DBMaxOpenConns: 1, PageSizeMax: 50}
	st := store.New(must.Must(store.Open(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))))
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	svc := NewService(st, cfg)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func status(s string) *string { return &s }

func TestCreateAndGetProduct(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, model.Product{ID: 99, Description: "Widget", Status: "A"})
	require.NoError(t, err)
	assert.NotEqual(t, int64(99), created.ID)
	assert.True(t, fixedNow.Equal(created.CreationDate))
	assert.Nil(t, created.ModificationDate)
	assert.NotNil(t, created.Prices)
	assert.Empty(t, created.Prices)

	got, err := svc.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Widget", got.Description)
}

func TestCreateProductWithInitialPrices(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, model.Product{
		Description: "Widget",
		Prices:      []model.Price{{ID: 7, ProductID: 1234, Amount: 3, Status: "A"}},
	})
	require.NoError(t, err)
	require.Len(t, created.Prices, 1)
	pr := created.Prices[0]
	assert.Equal(t, created.ID, pr.ProductID)
	assert.True(t, fixedNow.Equal(pr.CreationDate))

	got, err := svc.GetPrice(ctx, pr.ID)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, got.Amount, 1e-9)
}

func TestMissingIDsAreNotFound(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetProduct(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "Product id not found: 5")

	_, err = svc.GetPrice(ctx, 6)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "Price id not found: 6")

	_, err = svc.UpdateProduct(ctx, 5, model.Product{Description: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.UpdatePrice(ctx, 6, model.Price{Amount: 1})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.DeleteProduct(ctx, 5), ErrNotFound)
	assert.ErrorIs(t, svc.DeletePrice(ctx, 6), ErrNotFound)
}

func TestCreatePriceUnknownProduct(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePrice(ctx, model.PriceRequest{ProductID: 77, Price: 9.99, Status: status("A")})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Product", nf.Entity)
	assert.Equal(t, int64(77), nf.ID)

	page, err := svc.ListPrices(ctx, model.PageRequest{Size: 15, SortBy: "id"})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestCreatePriceReturnsCreatedRecord(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, model.Product{Description: "Widget", Status: "A"})
	require.NoError(t, err)

	first, err := svc.CreatePrice(ctx, model.PriceRequest{ProductID: p.ID, Price: 1, Status: status("A")})
	require.NoError(t, err)
	second, err := svc.CreatePrice(ctx, model.PriceRequest{ProductID: p.ID, Price: 9.99, Status: status("B")})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.InDelta(t, 9.99, second.Amount, 1e-9)
	assert.Equal(t, "B", second.Status)
	assert.Equal(t, p.ID, second.ProductID)
	assert.True(t, fixedNow.Equal(second.CreationDate))

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Prices, 2)
}

func TestUpdateProduct(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, model.Product{Description: "Widget", Status: "A"})
	require.NoError(t, err)
	_, err = svc.CreatePrice(ctx, model.PriceRequest{ProductID: p.ID, Price: 2, Status: status("A")})
	require.NoError(t, err)

	later := fixedNow.Add(time.Hour)
	svc.now = func() time.Time { return later }

	upd, err := svc.UpdateProduct(ctx, p.ID, model.Product{Description: "Gadget", Status: "B"})
	require.NoError(t, err)
	assert.Equal(t, p.ID, upd.ID)
	assert.Equal(t, "Gadget", upd.Description)
	assert.Equal(t, "B", upd.Status)
	require.NotNil(t, upd.ModificationDate)
	assert.True(t, later.Equal(*upd.ModificationDate))
	assert.True(t, fixedNow.Equal(upd.CreationDate))
	assert.Len(t, upd.Prices, 1)

	_, err = svc.UpdateProduct(ctx, p.ID, model.Product{ID: p.ID + 1, Description: "Other"})
	assert.True(t, validation.IsValidation(err))
	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gadget", got.Description)
}

func TestUpdatePrice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	a, err := svc.CreateProduct(ctx, model.Product{Description: "A"})
	require.NoError(t, err)
	b, err := svc.CreateProduct(ctx, model.Product{Description: "B"})
	require.NoError(t, err)
	pr, err := svc.CreatePrice(ctx, model.PriceRequest{ProductID: a.ID, Price: 2, Status: status("A")})
	require.NoError(t, err)

	upd, err := svc.UpdatePrice(ctx, pr.ID, model.Price{ID: pr.ID, ProductID: a.ID, Amount: 4.5, Status: "C"})
	require.NoError(t, err)
	assert.InDelta(t, 4.5, upd.Amount, 1e-9)
	assert.Equal(t, "C", upd.Status)
	assert.Equal(t, a.ID, upd.ProductID)
	require.NotNil(t, upd.ModificationDate)

	_, err = svc.UpdatePrice(ctx, pr.ID, model.Price{ProductID: b.ID, Amount: 1})
	assert.True(t, validation.IsValidation(err))
	_, err = svc.UpdatePrice(ctx, pr.ID, model.Price{ID: pr.ID + 1, Amount: 1})
	assert.True(t, validation.IsValidation(err))
}

func TestDeleteProductCascades(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	keep, err := svc.CreateProduct(ctx, model.Product{Description: "Keep"})
	require.NoError(t, err)
	drop, err := svc.CreateProduct(ctx, model.Product{Description: "Drop"})
	require.NoError(t, err)
	kept, err := svc.CreatePrice(ctx, model.PriceRequest{ProductID: keep.ID, Price: 1, Status: status("A")})
	require.NoError(t, err)
	dropped, err := svc.CreatePrice(ctx, model.PriceRequest{ProductID: drop.ID, Price: 1, Status: status("A")})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProduct(ctx, drop.ID))
	_, err = svc.GetPrice(ctx, dropped.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetPrice(ctx, kept.ID)
	assert.NoError(t, err)

	require.NoError(t, svc.DeletePrice(ctx, kept.ID))
	got, err := svc.GetProduct(ctx, keep.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Prices)
}

func TestListProductsPaging(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	for _, d := range []string{"pear", "apple", "fig"} {
		_, err := svc.CreateProduct(ctx, model.Product{Description: d})
		require.NoError(t, err)
	}

	page, err := svc.ListProducts(ctx, model.PageRequest{Index: 0, Size: 1, SortBy: "description"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "apple", page.Items[0].Description)
	assert.EqualValues(t, 3, page.Total)

	page, err = svc.ListProducts(ctx, model.PageRequest{Index: 1, Size: 2, SortBy: "description"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "pear", page.Items[0].Description)

	page, err = svc.ListProducts(ctx, model.PageRequest{Index: 0, Size: 1000, SortBy: "id"})
	require.NoError(t, err)
	assert.Equal(t, 50, page.Size)
	assert.Len(t, page.Items, 3)
}

func TestListRejectsBadPageRequests(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, req := range []model.PageRequest{
		{Size: 15, SortBy: "name"},
		{Index: -1, Size: 15, SortBy: "id"},
		{Size: 0, SortBy: "id"},
		{Index: math.MaxInt/16 + 1, Size: 16, SortBy: "id"},
		{Index: math.MaxInt, Size: 2000, SortBy: "id"},
	} {
		_, err := svc.ListProducts(ctx, req)
		assert.True(t, validation.IsValidation(err), "%+v", req)
		_, err = svc.ListPrices(ctx, req)
		assert.True(t, validation.IsValidation(err), "%+v", req)
	}
}

type brokenRepo struct {
	Repository
}

var errDown = errors.New("database down")

func (brokenRepo) GetProduct(context.Context, int64) (model.Product, error) {
	return model.Product{}, errDown
}

func (brokenRepo) AddPrice(context.Context, *model.Price) error { return errDown }

func TestStoreFailuresPropagate(t *testing.T) {
	svc := NewService(brokenRepo{}, config.Config{})
	_, err := svc.GetProduct(context.Background(), 1)
	assert.ErrorIs(t, err, errDown)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = svc.CreatePrice(context.Background(), model.PriceRequest{ProductID: 1, Price: 1, Status: status("A")})
	assert.ErrorIs(t, err, errDown)
}
