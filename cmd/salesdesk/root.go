package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"github.com/AgentMesh-Net/salesdesk/internal/api"
	"github.com/AgentMesh-Net/salesdesk/internal/config"
	"github.com/AgentMesh-Net/salesdesk/internal/mcptools"
	"github.com/AgentMesh-Net/salesdesk/internal/store"
	"github.com/AgentMesh-Net/salesdesk/migrations"
)

func newRootCommand(logger pslog.Logger) *cobra.Command {
	v := config.New()
	root := &cobra.Command{
		Use:           "salesdesk",
		Short:         "CRM and tax records over REST and MCP with confirmed writes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(".env")
		},
	}
	if err := config.RegisterFlags(v, root.PersistentFlags()); err != nil {
		panic(err)
	}
	root.AddCommand(newServeCommand(v, logger), newMCPCommand(v, logger), newMigrateCommand(v, logger))
	return root
}

func newServeCommand(v *viper.Viper, logger pslog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rt, err := build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			router := api.NewRouter(api.Deps{CRM: rt.crm, Tax: rt.tax, Gatherer: rt.registry, Logger: logger}, cfg)
			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
				MaxHeaderBytes:    1 << 20, // 1MB
			}
			errc := make(chan error, 1)
			go func() {
				logger.Info("http.listen", "addr", cfg.HTTPAddr, "store", cfg.Store)
				errc <- srv.ListenAndServe()
			}()
			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("listen: %w", err)
				}
				return nil
			case <-ctx.Done():
			}
			logger.Info("http.shutdown")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logger.Info("http.stopped")
			return nil
		},
	}
}

func newMCPCommand(v *viper.Viper, logger pslog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio or streamable HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if cfg.MCPUserID == "" {
				return errors.New("mcp-user-id is required")
			}
			ctx := cmd.Context()
			rt, err := build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			srv := mcptools.New(mcptools.Config{
				Name:    cfg.ServiceName,
				Version: version,
				User:    store.UserContext{UserID: cfg.MCPUserID, Roles: store.ParseRoles(cfg.MCPUserRoles)},
			}, rt.crm, rt.tax, logger)
			if cfg.MCPTransport == config.TransportHTTP {
				return srv.ServeHTTP(ctx, cfg.MCPAddr)
			}
			return srv.RunStdio(ctx)
		},
	}
}

func newMigrateCommand(v *viper.Viper, logger pslog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if cfg.Store != config.StorePostgres {
				return fmt.Errorf("migrate needs the %s store", config.StorePostgres)
			}
			pool, err := store.NewPool(cmd.Context(), cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer pool.Close()
			return store.RunMigrations(cmd.Context(), pool, migrations.FS, logger)
		},
	}
}
