// Package main boots the product catalog HTTP service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/fairyhunter13/product-catalog-service/internal/config"
	"github.com/fairyhunter13/product-catalog-service/internal/obs"
)

const (
	configFlag   = "config"
	addrFlag     = "addr"
	logLevelFlag = "log-level"
)

var flags = map[string]cobraflags.Flag{
	configFlag: &cobraflags.StringFlag{
		Name:  configFlag,
		Value: "",
		Usage: "Path to a YAML config file; environment variables override it",
	},
	addrFlag: &cobraflags.StringFlag{
		Name:  addrFlag,
		Value: "",
		Usage: "HTTP listen address, overrides HTTP_ADDR",
	},
	logLevelFlag: &cobraflags.StringFlag{
		Name:  logLevelFlag,
		Value: "",
		Usage: "Log level (debug, info, warn, error), overrides LOG_LEVEL",
	},
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "product-catalog-service",
		Short:        "Product and price catalog REST service",
		SilenceUsage: true,
		RunE:         serveCommand,
	}
	cobraflags.RegisterMap(root, flags)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE:  serveCommand,
	}
	cobraflags.RegisterMap(serve, flags)

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the catalog tables and exit",
		RunE:  migrateCommand,
	}
	cobraflags.RegisterMap(migrate, flags)

	root.AddCommand(serve, migrate)
	return root
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flags[configFlag].GetString())
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if addr := flags[addrFlag].GetString(); addr != "" {
		cfg.HTTPAddr = addr
	}
	if level := flags[logLevelFlag].GetString(); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

func serveCommand(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app := fx.New(options(cfg), fx.Invoke(registerServer))

	startCtx, cancelStart := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	obs.Logger.Info("service_started", "addr", cfg.HTTPAddr)

	sig := <-app.Wait()
	obs.Logger.Info("shutdown_signal", "signal", sig.Signal, "exit_code", sig.ExitCode)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	obs.Logger.Info("service_stopped")
	if sig.ExitCode != 0 {
		return fmt.Errorf("exited with code %d", sig.ExitCode)
	}
	return nil
}

func migrateCommand(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app := fx.New(options(cfg), fx.Invoke(registerMigration))
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	obs.Logger.Info("migration_complete", "dialect", cfg.DBDialect)
	return app.Stop(ctx)
}
