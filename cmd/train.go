package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceguard/internal/alert"
	"github.com/kozaktomas/faceguard/internal/config"
	"github.com/kozaktomas/faceguard/internal/database/postgres"
	"github.com/kozaktomas/faceguard/internal/extraction"
	"github.com/kozaktomas/faceguard/internal/logging"
	"github.com/kozaktomas/faceguard/internal/recognition"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Record a training photo for an identity",
	Long: `Record an operator-confirmed training photo for an identity.
The photo's embedding enters the identity's training buffer exactly like
a qualifying recognition would; a full buffer recomputes the reference
embedding.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().String("identity", "", "Identity ID to train")
	trainCmd.Flags().String("photo", "", "Path to the training photo")
}

func runTrain(cmd *cobra.Command, args []string) error {
	identityID := mustGetString(cmd, "identity")
	photoPath := mustGetString(cmd, "photo")
	if identityID == "" || photoPath == "" {
		return errors.New("--identity and --photo are required")
	}

	cfg := config.Load()
	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)
	ctx := context.Background()

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	identities := postgres.NewIdentityRepository(pool)
	identity, err := identities.Get(ctx, identityID)
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}
	if identity == nil {
		return fmt.Errorf("identity %s not found", identityID)
	}

	photo, err := os.ReadFile(photoPath)
	if err != nil {
		return fmt.Errorf("reading photo: %w", err)
	}
	embedding, err := extraction.NewClient(cfg.Extractor.URL).Extract(ctx, photo)
	if err != nil {
		return fmt.Errorf("extracting embedding: %w", err)
	}

	samples := postgres.NewSampleRepository(pool)
	alertLog := postgres.NewAlertRepository(pool)

	dispatcher, err := alert.NewDispatcher(alertLog, cfg.Alert, log)
	if err != nil {
		return fmt.Errorf("creating alert dispatcher: %w", err)
	}
	defer dispatcher.Close()

	engine := recognition.NewEngine(identities, postgres.NewEventRepository(pool), samples, dispatcher, recognition.NewTrainer(), log)

	// Seed the buffer so this sample counts against the persisted cycle.
	buffered, err := samples.ListByIdentity(ctx, identityID)
	if err != nil {
		return fmt.Errorf("loading training samples: %w", err)
	}
	engine.SeedBuffers(buffered)

	if err := engine.Train(ctx, identityID, embedding, time.Now()); err != nil {
		return fmt.Errorf("recording training sample: %w", err)
	}

	fmt.Printf("Training sample recorded for %s\n", identity.FullName())
	return nil
}
