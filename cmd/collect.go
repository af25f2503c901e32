package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Baabao/insert-itunes-collector/internal/api"
	"github.com/Baabao/insert-itunes-collector/internal/catalog"
)

// newCollectCmd creates the 'collect' subcommand, which runs one full
// collection over the given genres.
func newCollectCmd() *cobra.Command {
	var genres []string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Runs one collection over the enabled genres",
		Long: `Fetches the top chart of every given genre, resolves each
collection's lookup metadata with bounded concurrency and retry quotas,
retrieves the feeds, and persists the normalized records.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollect(cmd, genres)
		},
	}
	cmd.Flags().StringSliceVar(&genres, "genres", nil, "genre ids to collect (comma separated)")
	_ = cmd.MarkFlagRequired("genres")

	return cmd
}

func runCollect(cmd *cobra.Command, genres []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	genreIDs := make([]catalog.GenreID, 0, len(genres))
	for _, g := range genres {
		if g != "" {
			genreIDs = append(genreIDs, g)
		}
	}
	if len(genreIDs) == 0 {
		return errors.New("at least one genre id required")
	}

	if loadedCfg.Server.Enabled {
		stop := startOpsServer(appInstance, logger)
		defer stop()
	}

	if err := appInstance.RunCollection(cmd.Context(), genreIDs); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run collection: %w", err)
	}

	logger.Info("collect command finished")
	return nil
}

// startOpsServer serves health and metrics while the run is in flight
// and returns a function that shuts it down.
func startOpsServer(appInstance App, logger *zap.Logger) func() {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", loadedCfg.Server.Port),
		Handler:           api.NewServer(appInstance, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("ops server shutdown failed", zap.Error(err))
		}
	}
}
