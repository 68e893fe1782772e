package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fairyhunter13/product-catalog-service/internal/auth"
	"github.com/fairyhunter13/product-catalog-service/internal/catalog"
	"github.com/fairyhunter13/product-catalog-service/internal/config"
	httpopenapi "github.com/fairyhunter13/product-catalog-service/internal/http/openapi"
	"github.com/fairyhunter13/product-catalog-service/internal/model"
	"github.com/fairyhunter13/product-catalog-service/internal/obs"
	"github.com/fairyhunter13/product-catalog-service/internal/validation"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// App holds the dependencies of the HTTP handlers.
type App struct {
	Cfg     config.Config
	Catalog *catalog.Service
	Tokens  *auth.Server
	DB      Pinger
	closing atomic.Bool
}

// NewApp builds the handler dependencies.
func NewApp(cfg config.Config, svc *catalog.Service, tokens *auth.Server, db Pinger) *App {
	return &App{Cfg: cfg, Catalog: svc, Tokens: tokens, DB: db}
}

// StartShutdown makes the health check fail so load balancers stop routing
// new traffic while in-flight requests finish.
func (a *App) StartShutdown() {
	a.closing.Store(true)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, validation.Invalid("id", "must be an integer")
	}
	return id, nil
}

func (a *App) pageRequest(c echo.Context) (model.PageRequest, error) {
	req := model.PageRequest{Index: 0, Size: a.Cfg.PageSizeDefault, SortBy: "id"}
	err := echo.QueryParamsBinder(c).
		Int("index", &req.Index).
		Int("size", &req.Size).
		String("sortBy", &req.SortBy).
		BindError()
	if err != nil {
		return model.PageRequest{}, validation.Invalid("query", err.Error())
	}
	if req.SortBy == "" {
		req.SortBy = "id"
	}
	if err := c.Validate(&req); err != nil {
		return model.PageRequest{}, err
	}
	return req, nil
}

func writePage[T any](c echo.Context, page model.Page[T]) error {
	c.Response().Header().Set("X-Total-Count", strconv.FormatInt(page.Total, 10))
	return c.JSON(http.StatusOK, page.Items)
}

var binder = &echo.DefaultBinder{}

// bindValid decodes the request body into v and validates it. Path and
// query parameters are never bound into payloads.
func bindValid(c echo.Context, v any) error {
	if err := binder.BindBody(c, v); err != nil {
		return err
	}
	return c.Validate(v)
}

func (a *App) listProducts(c echo.Context) error {
	req, err := a.pageRequest(c)
	if err != nil {
		return err
	}
	page, err := a.Catalog.ListProducts(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return writePage(c, page)
}

func (a *App) getProduct(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := a.Catalog.GetProduct(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (a *App) createProduct(c echo.Context) error {
	var p model.Product
	if err := bindValid(c, &p); err != nil {
		return err
	}
	created, err := a.Catalog.CreateProduct(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

func (a *App) updateProduct(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req model.ProductUpdate
	if err := bindValid(c, &req); err != nil {
		return err
	}
	updated, err := a.Catalog.UpdateProduct(c.Request().Context(), id, req.Product())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

func (a *App) deleteProduct(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := a.Catalog.DeleteProduct(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

func (a *App) listPrices(c echo.Context) error {
	req, err := a.pageRequest(c)
	if err != nil {
		return err
	}
	page, err := a.Catalog.ListPrices(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return writePage(c, page)
}

func (a *App) getPrice(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := a.Catalog.GetPrice(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (a *App) createPrice(c echo.Context) error {
	var req model.PriceRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	created, err := a.Catalog.CreatePrice(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

func (a *App) updatePrice(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var p model.Price
	if err := bindValid(c, &p); err != nil {
		return err
	}
	updated, err := a.Catalog.UpdatePrice(c.Request().Context(), id, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

func (a *App) deletePrice(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := a.Catalog.DeletePrice(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// tokenHandler is the OAuth2 token endpoint. The client authenticates with
// HTTP Basic or with client_id/client_secret form fields.
func (a *App) tokenHandler(c echo.Context) error {
	clientID, secret, ok := c.Request().BasicAuth()
	if !ok {
		clientID, secret = c.FormValue("client_id"), c.FormValue("client_secret")
	}
	if err := a.Tokens.AuthenticateClient(clientID, secret); err != nil {
		return err
	}
	tok, err := a.Tokens.Exchange(c.FormValue("grant_type"), map[string]string{
		"username":      c.FormValue("username"),
		"password":      c.FormValue("password"),
		"refresh_token": c.FormValue("refresh_token"),
	})
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSON(http.StatusOK, tok)
}

func (a *App) healthHandler(c echo.Context) error {
	if a.closing.Load() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := a.DB.Ping(ctx); err != nil {
		obs.Logger.Warn("health_db_unreachable", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "db_unreachable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) metricsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, obs.Snapshot())
}

func (a *App) openapiHandler(c echo.Context) error {
	return c.Blob(http.StatusOK, "application/yaml", httpopenapi.YAML)
}

func (a *App) docsHandler(c echo.Context) error {
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Product Catalog API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	return c.HTML(http.StatusOK, html)
}
