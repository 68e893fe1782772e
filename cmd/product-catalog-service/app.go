package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/fairyhunter13/product-catalog-service/internal/auth"
	"github.com/fairyhunter13/product-catalog-service/internal/catalog"
	"github.com/fairyhunter13/product-catalog-service/internal/config"
	httpapi "github.com/fairyhunter13/product-catalog-service/internal/http"
	"github.com/fairyhunter13/product-catalog-service/internal/obs"
	"github.com/fairyhunter13/product-catalog-service/internal/store"
)

// options wires every component of the service for cfg.
func options(cfg config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(
			newLogger,
			store.Open,
			store.New,
			func(s *store.Store) catalog.Repository { return s },
			func(s *store.Store) httpapi.Pinger { return s },
			catalog.NewService,
			auth.NewServer,
			httpapi.NewApp,
			httpapi.NewRouter,
		),
		fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: l}
		}),
	)
}

func newLogger(cfg config.Config) *slog.Logger {
	return obs.InitLogger(cfg.LogLevel)
}

func registerServer(lc fx.Lifecycle, sd fx.Shutdowner, cfg config.Config, st *store.Store, app *httpapi.App, e *echo.Echo) {
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if cfg.DBAutoMigrate {
				if err := st.Migrate(ctx); err != nil {
					return err
				}
			}
			ln, err := net.Listen("tcp", cfg.HTTPAddr)
			if err != nil {
				return err
			}
			e.Listener = ln
			app.Tokens.Start(context.Background())
			go func() {
				obs.Logger.Info("http_listen", "addr", ln.Addr().String())
				if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					obs.Logger.Error("http_server_error", "error", err)
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			app.StartShutdown()
			err := e.Shutdown(ctx)
			if err != nil {
				obs.Logger.Error("http_shutdown_error", "error", err)
			}
			app.Tokens.Stop()
			return errors.Join(err, st.Close())
		},
	})
}

func registerMigration(lc fx.Lifecycle, st *store.Store) {
	lc.Append(fx.Hook{
		OnStart: st.Migrate,
		OnStop: func(context.Context) error {
			return st.Close()
		},
	})
}
