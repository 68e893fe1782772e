package httpapi

import (
	"expvar"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fairyhunter13/product-catalog-service/internal/access"
	"github.com/fairyhunter13/product-catalog-service/internal/validation"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.NewValidator()
	e.HTTPErrorHandler = HandleError

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(WithRequestID, WithLogging, middleware.Recover())

	e.POST("/oauth/token", app.tokenHandler)
	e.GET("/healthz", app.healthHandler)
	e.GET("/debug/metrics", app.metricsHandler)
	e.GET("/debug/vars", echo.WrapHandler(expvar.Handler()))
	e.GET("/openapi.yaml", app.openapiHandler)
	e.GET("/docs", app.docsHandler)

	api := e.Group("/api/v1", Authenticate(app.Tokens))

	api.GET("/product", app.listProducts, Authorize(access.ListProducts))
	api.GET("/product/:id", app.getProduct, Authorize(access.GetProduct))
	api.POST("/product", app.createProduct, Authorize(access.CreateProduct))
	api.POST("/product/:id", app.updateProduct, Authorize(access.UpdateProduct))
	api.DELETE("/product/:id", app.deleteProduct, Authorize(access.DeleteProduct))

	api.GET("/price", app.listPrices, Authorize(access.ListPrices))
	api.GET("/price/:id", app.getPrice, Authorize(access.GetPrice))
	api.POST("/price", app.createPrice, Authorize(access.CreatePrice))
	api.POST("/price/:id", app.updatePrice, Authorize(access.UpdatePrice))
	api.DELETE("/price/:id", app.deletePrice, Authorize(access.DeletePrice))

	return e
}
