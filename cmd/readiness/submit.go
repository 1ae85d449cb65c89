package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/readiness/internal/logging"
	"github.com/felixgeelhaar/readiness/internal/queue"
)

func newSubmitCmd() *cobra.Command {
	f := &scoreFlags{}
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "submit <file|->",
		Short: "Queue an interview for a worker and wait for its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logging.Stderr(logging.ParseLevel(cfg.Daemon.LogLevel))

			req, err := readRequest(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			conn, err := queue.NewConnection(cfg.Queue.URL, queuesFor(cfg))
			if err != nil {
				return fmt.Errorf("connect queue: %w", err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			results := queue.NewResultConsumer(conn)
			if err := results.Start(ctx); err != nil {
				return fmt.Errorf("start result consumer: %w", err)
			}
			defer results.Stop()

			job := queue.NewScoreJob(*req)
			await := results.Await(job.ID.String())

			producer := queue.NewProducer(conn, conn.Queues(), queue.DefaultProducerConfig())
			if err := producer.PublishScoreJob(ctx, job); err != nil {
				return err
			}

			result, err := await(ctx)
			if err != nil {
				return exitError(4, "no report for job %s: %v", job.ID, err)
			}
			outcome, err := result.Outcome()
			if err != nil {
				return exitError(4, "%v", err)
			}
			return emit(outcome, f, cmd.OutOrStdout())
		},
	}

	addOutputFlags(cmd, f)
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "How long to wait for the report")
	return cmd
}
