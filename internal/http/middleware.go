package httpapi

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fairyhunter13/product-catalog-service/internal/access"
	"github.com/fairyhunter13/product-catalog-service/internal/obs"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
)

// RequestIDFromContext returns the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

// WithRequestID propagates X-Request-Id, generating one when absent.
func WithRequestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		reqID := r.Header.Get(echo.HeaderXRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, reqID)
		c.SetRequest(r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, reqID)))
		return next(c)
	}
}

// WithLogging writes one access log line per request. Errors are rendered
// here so the logged status is the one sent to the client.
func WithLogging(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}
		r := c.Request()
		res := c.Response()
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", res.Status,
			"bytes", res.Size,
			"latency_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"request_id", RequestIDFromContext(r.Context()),
		}
		if p := access.PrincipalFrom(r.Context()); p != nil {
			attrs = append(attrs, "subject", p.Subject, "client_id", p.ClientID)
		}
		obs.Logger.Info("http_request", attrs...)
		return nil
	}
}

// TokenAuthenticator resolves bearer tokens.
type TokenAuthenticator interface {
	Authenticate(token string) (*access.Principal, error)
}

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if h == "" {
		return c.QueryParam("access_token")
	}
	return ""
}

// Authenticate attaches the principal of a bearer token to the request
// context. Requests without a token pass through anonymously; a token that
// does not resolve is rejected.
func Authenticate(tokens TokenAuthenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok := bearerToken(c)
			if tok == "" {
				return next(c)
			}
			p, err := tokens.Authenticate(tok)
			if err != nil {
				return err
			}
			r := c.Request()
			c.SetRequest(r.WithContext(access.WithPrincipal(r.Context(), p)))
			return next(c)
		}
	}
}

// Authorize guards a route with the access policy of op and counts its
// outcome.
func Authorize(op access.Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() { obs.Observe(string(op), err) }()
			if err = access.Authorize(c.Request().Context(), op); err != nil {
				return err
			}
			return next(c)
		}
	}
}
