package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceguard/internal/config"
	"github.com/kozaktomas/faceguard/internal/database/postgres"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List enrolled identities",
	RunE:  runIdentities,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)

	identitiesCmd.Flags().Bool("flagged", false, "Only show flagged identities")
}

func runIdentities(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	flaggedOnly := mustGetBool(cmd, "flagged")

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	identities, err := postgres.NewIdentityRepository(pool).Snapshot(context.Background())
	if err != nil {
		return fmt.Errorf("loading identities: %w", err)
	}

	shown := 0
	for _, identity := range identities {
		if flaggedOnly && !identity.Flagged {
			continue
		}
		state := "untrained"
		if identity.Trained() {
			state = "trained"
		}
		marker := " "
		if identity.Flagged {
			marker = "!"
		}
		fmt.Printf("%s %-36s  %-9s  %s\n", marker, identity.ID, state, identity.FullName())
		shown++
	}
	fmt.Printf("\n%d identities\n", shown)
	return nil
}
