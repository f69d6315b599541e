package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/aradsms/wa_gateway/internal/platform/circuitbreaker"
	claimpostgres "github.com/aradsms/wa_gateway/internal/webhook_service/repository/postgres"
)

var claimRetention time.Duration

var circuitsCmd = &cobra.Command{
	Use:   "circuits",
	Short: "Inspect and reset circuit breakers",
}

var circuitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show persisted breaker state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		reg := circuitbreaker.NewRegistry(circuitbreaker.Config{}, circuitbreaker.NewPgStateStore(e.pool, e.log), e.log)
		snaps, err := reg.Snapshots(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), snaps)
	},
}

var circuitsResetCmd = &cobra.Command{
	Use:   "reset <service>",
	Short: "Force a breaker back to closed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		reg := circuitbreaker.NewRegistry(circuitbreaker.Config{}, circuitbreaker.NewPgStateStore(e.pool, e.log), e.log)
		reg.Reset(cmd.Context(), args[0])
		e.log.Info("Circuit reset", "service", args[0])
		return printJSON(cmd.OutOrStdout(), reg.Get(args[0]).Snapshot(cmd.Context()))
	},
}

var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Manage webhook idempotency claims",
}

var claimsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete claims older than --older-than",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		n, err := claimpostgres.NewPgIdempotencyStore(e.pool, e.log).Prune(cmd.Context(), time.Now().Add(-claimRetention))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"pruned": n})
	},
}

func init() {
	rootCmd.AddCommand(circuitsCmd, claimsCmd)
	circuitsCmd.AddCommand(circuitsListCmd, circuitsResetCmd)
	claimsCmd.AddCommand(claimsPruneCmd)

	claimsPruneCmd.Flags().DurationVar(&claimRetention, "older-than", 7*24*time.Hour, "age threshold")
}
