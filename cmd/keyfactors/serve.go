package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Metaculus/metaculus-sub005/internal/apiserver"
	"github.com/Metaculus/metaculus-sub005/internal/backend"
	"github.com/Metaculus/metaculus-sub005/internal/backend/sqlite"
	"github.com/Metaculus/metaculus-sub005/internal/fixtures"
	"github.com/Metaculus/metaculus-sub005/internal/preview"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local key factor API backed by SQLite and fixtures",
	Long: `Starts the development API. Posts and canned suggestions are loaded from
the fixtures directory; comments, key factors and votes are stored in SQLite.
Point the workbench at it with --api-url.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", -1, "listen port (overrides server.port; 0 picks a free port)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logs, err := loadProject()
	if err != nil {
		return err
	}
	defer logs.Close()
	logger := logs.Named("serve")

	catalog, err := fixtures.LoadDir(cfg.FixturesDir())
	if err != nil {
		return fmt.Errorf("load fixtures: %w", err)
	}
	store, err := sqlite.Open(cfg.StoragePath())
	if err != nil {
		return err
	}
	defer store.Close()

	svc := backend.New(store, catalog,
		backend.WithSuggester(catalog),
		backend.WithPreviewFetcher(preview.NewHTMLFetcher(cfg.PreviewTimeout())),
		backend.WithLogger(logs.Named("backend")),
		backend.WithDefaultUser(cfg.Project.User.ID),
	)

	settings := apiserver.SettingsFromConfig(cfg)
	if servePort >= 0 {
		settings.Port = servePort
	}
	srv := apiserver.NewServer(settings, svc, apiserver.WithLogger(logs.Named("api")))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		if errors.Is(err, apiserver.ErrDisabled) {
			return fmt.Errorf("server.enabled is false in %s", cfg.ProjectConfigPath())
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Serving key factors API at %s (storage %s)\n", srv.BaseURL(), cfg.StoragePath())
	logger.Info("serving",
		zap.String("url", srv.BaseURL()),
		zap.String("fixtures", cfg.FixturesDir()),
		zap.String("storage", cfg.StoragePath()),
	)

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
