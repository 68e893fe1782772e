// Package httpapi exposes the HTTP API layer of the service.
package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fairyhunter13/product-catalog-service/internal/access"
	"github.com/fairyhunter13/product-catalog-service/internal/auth"
	"github.com/fairyhunter13/product-catalog-service/internal/catalog"
	"github.com/fairyhunter13/product-catalog-service/internal/obs"
	"github.com/fairyhunter13/product-catalog-service/internal/validation"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Timestamp time.Time               `json:"timestamp"`
	Status    int                     `json:"status"`
	Error     string                  `json:"error"`
	Details   []validation.FieldError `json:"details,omitempty"`
}

// WriteJSONError writes a JSON error payload with the given status code.
func WriteJSONError(c echo.Context, status int, message string, details []validation.FieldError) error {
	return c.JSON(status, jsonError{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     message,
		Details:   details,
	})
}

// HandleError is the echo error handler: it maps domain errors to status
// codes and writes the error body.
func HandleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var (
		notFound *catalog.NotFoundError
		invalid  *validation.Error
		oauthErr *auth.Error
		httpErr  *echo.HTTPError
	)
	var werr error
	switch {
	case errors.As(err, &notFound):
		werr = WriteJSONError(c, http.StatusNotFound, notFound.Error(), nil)
	case errors.As(err, &invalid):
		werr = WriteJSONError(c, http.StatusBadRequest, "Validation failed", invalid.Fields)
	case errors.Is(err, access.ErrUnauthenticated):
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="catalog"`)
		werr = WriteJSONError(c, http.StatusUnauthorized, access.ErrUnauthenticated.Error(), nil)
	case errors.Is(err, access.ErrForbidden):
		werr = WriteJSONError(c, http.StatusForbidden, "Access is denied", nil)
	case errors.As(err, &oauthErr):
		if oauthErr.Status == http.StatusUnauthorized {
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, fmt.Sprintf(`Bearer realm="catalog", error=%q`, oauthErr.Code))
		}
		werr = c.JSON(oauthErr.Status, oauthErr)
	case errors.As(err, &httpErr):
		werr = WriteJSONError(c, httpErr.Code, fmt.Sprint(httpErr.Message), nil)
	default:
		obs.Logger.ErrorContext(c.Request().Context(), "request_failed",
			"error", err,
			"path", c.Request().URL.Path,
			"request_id", RequestIDFromContext(c.Request().Context()),
		)
		werr = WriteJSONError(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), nil)
	}
	if werr != nil {
		obs.Logger.Error("write_error_response", "error", werr)
	}
}
