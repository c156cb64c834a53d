package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceguard/internal/alert"
	"github.com/kozaktomas/faceguard/internal/config"
	"github.com/kozaktomas/faceguard/internal/database"
	"github.com/kozaktomas/faceguard/internal/database/postgres"
	"github.com/kozaktomas/faceguard/internal/extraction"
	"github.com/kozaktomas/faceguard/internal/logging"
	"github.com/kozaktomas/faceguard/internal/recognition"
	"github.com/kozaktomas/faceguard/internal/storage"
	"github.com/kozaktomas/faceguard/internal/web"
)

// indexedIdentityStore keeps the ANN index in sync when a training flush
// replaces a reference embedding.
type indexedIdentityStore struct {
	*postgres.IdentityRepository
	index *database.IdentityIndex
}

func (s indexedIdentityStore) UpdateReferenceEmbedding(ctx context.Context, id string, embedding []float32) error {
	if err := s.IdentityRepository.UpdateReferenceEmbedding(ctx, id, embedding); err != nil {
		return err
	}
	s.index.Upsert(id, embedding)
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recognition API server",
	Long: `Start the FaceGuard API server.
The server exposes the recognition endpoint for cameras, identity
enrollment and management, the public recognition board, the alert log
and report export.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Web.Port = port
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)
	ctx := context.Background()

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	identities := postgres.NewIdentityRepository(pool)
	events := postgres.NewEventRepository(pool)
	samples := postgres.NewSampleRepository(pool)
	alertLog := postgres.NewAlertRepository(pool)

	index := database.NewIdentityIndex()
	snapshot, err := identities.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("loading identities: %w", err)
	}
	index.Build(snapshot)
	log.Info().Int("identities", len(snapshot)).Int("indexed", index.Count()).Msg("identity index built")

	dispatcher, err := alert.NewDispatcher(alertLog, cfg.Alert, log)
	if err != nil {
		return fmt.Errorf("creating alert dispatcher: %w", err)
	}
	defer dispatcher.Close()

	engine := recognition.NewEngine(
		indexedIdentityStore{IdentityRepository: identities, index: index},
		events, samples, dispatcher, recognition.NewTrainer(), log)

	// Restore training buffers interrupted by the previous shutdown.
	buffered, err := samples.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("loading training samples: %w", err)
	}
	engine.SeedBuffers(buffered)
	log.Info().Int("samples", len(buffered)).Msg("training buffers restored")

	photos, err := storage.NewPhotoStore(cfg.Storage.FacesDir)
	if err != nil {
		return fmt.Errorf("opening photo store: %w", err)
	}

	server := web.NewServer(cfg, web.Dependencies{
		Engine:     engine,
		Extractor:  extraction.NewClient(cfg.Extractor.URL),
		Identities: identities,
		Events:     events,
		Alerts:     alertLog,
		Index:      index,
		Photos:     photos,
		Pinger:     pool,
	}, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
