// Command webhookctl is the operator CLI for the webhook gateway's job queue,
// idempotency claims and circuit breakers.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/aradsms/wa_gateway/internal/platform/auth"
	"github.com/aradsms/wa_gateway/internal/platform/config"
	"github.com/aradsms/wa_gateway/internal/platform/database"
	"github.com/aradsms/wa_gateway/internal/platform/logger"
)

const serviceName = "webhookctl"

var rootCmd = &cobra.Command{
	Use:           serviceName,
	Short:         "Operate the WhatsApp webhook gateway",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env holds the connections a subcommand needs.
type env struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, _, err := config.Load(serviceName)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	pool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	// CLI output goes to stdout; logs go to stderr.
	return &env{log: logger.NewWithWriter(os.Stderr, cfg.LogLevel), pool: pool}, nil
}

func (e *env) Close() { e.pool.Close() }

// operatorContext marks ctx as an admin principal so queue operations that
// require authorization go through.
func operatorContext(ctx context.Context) context.Context {
	user := os.Getenv("USER")
	if user == "" {
		user = "operator"
	}
	return auth.WithPrincipal(ctx, auth.Principal{ID: "cli:" + user, Username: user, IsAdmin: true})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
