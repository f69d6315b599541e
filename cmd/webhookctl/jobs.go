package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	jobapp "github.com/aradsms/wa_gateway/internal/scheduler_service/app"
	jobpostgres "github.com/aradsms/wa_gateway/internal/scheduler_service/repository/postgres"
)

var (
	failedLimit    int
	retryAll       bool
	cancelArgs     string
	purgeOlderThan time.Duration
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage queued jobs",
}

var jobsFailedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List failed jobs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withQueue(cmd, func(q *jobapp.Queue) error {
			jobs, err := q.FailedJobs(cmd.Context(), failedLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), jobs)
		})
	},
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry [job-id]",
	Short: "Re-enqueue a failed job, or every failed job with --all",
	Args: func(cmd *cobra.Command, args []string) error {
		if retryAll {
			return cobra.NoArgs(cmd, args)
		}
		if err := cobra.ExactArgs(1)(cmd, args); err != nil {
			return err
		}
		if _, err := uuid.Parse(args[0]); err != nil {
			return fmt.Errorf("invalid job id %q: %w", args[0], err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(cmd, func(q *jobapp.Queue) error {
			ctx := operatorContext(cmd.Context())
			if retryAll {
				ids, err := q.RetryFailedJobs(ctx, failedLimit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"retried": ids})
			}
			oldID := uuid.MustParse(args[0])
			newID, err := q.RetryFailedJob(ctx, oldID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"old_job_id": oldID, "new_job_id": newID})
		})
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <hook>",
	Short: "Cancel pending jobs for a hook, optionally filtered by --args JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		match, err := parseArgsMatch(cancelArgs)
		if err != nil {
			return err
		}
		return withQueue(cmd, func(q *jobapp.Queue) error {
			n, err := q.Cancel(cmd.Context(), args[0], match)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"hook": args[0], "cancelled": n})
		})
	},
}

var jobsPendingCmd = &cobra.Command{
	Use:   "pending <hook>",
	Short: "Count pending jobs for a hook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(cmd, func(q *jobapp.Queue) error {
			n, err := q.PendingCount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"hook": args[0], "pending": n})
		})
	},
}

var jobsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete completed and cancelled jobs older than --older-than",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if purgeOlderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		return withQueue(cmd, func(q *jobapp.Queue) error {
			n, err := q.PurgeFinished(cmd.Context(), time.Now().Add(-purgeOlderThan))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"purged": n})
		})
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsFailedCmd, jobsRetryCmd, jobsCancelCmd, jobsPendingCmd, jobsPurgeCmd)

	jobsFailedCmd.Flags().IntVarP(&failedLimit, "limit", "n", 50, "maximum number of jobs")
	jobsRetryCmd.Flags().BoolVar(&retryAll, "all", false, "retry every failed job up to --limit")
	jobsRetryCmd.Flags().IntVarP(&failedLimit, "limit", "n", 50, "maximum number of jobs retried with --all")
	jobsCancelCmd.Flags().StringVar(&cancelArgs, "args", "", `JSON object the job args must contain, e.g. '{"event_name":"webhook.messages"}'`)
	jobsPurgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 7*24*time.Hour, "age threshold")
}

func withQueue(cmd *cobra.Command, fn func(q *jobapp.Queue) error) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()
	repo := jobpostgres.NewPgJobRepository(e.pool, e.log)
	return fn(jobapp.NewQueue(repo, e.log))
}

// parseArgsMatch decodes the --args filter. Empty input means no filter.
func parseArgsMatch(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("--args must be a JSON object: %w", err)
	}
	return m, nil
}
