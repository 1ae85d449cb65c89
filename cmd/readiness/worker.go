package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/readiness/internal/config"
	"github.com/felixgeelhaar/readiness/internal/logging"
	"github.com/felixgeelhaar/readiness/internal/queue"
	"github.com/felixgeelhaar/readiness/internal/scoring"
)

func queuesFor(cfg *config.Config) queue.Queues {
	return queue.Queues{Jobs: cfg.Queue.JobQueue, Results: cfg.Queue.ResultQueue}
}

func newWorkerCmd() *cobra.Command {
	var jobTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Score interviews from the RabbitMQ job queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			dir, err := config.EnsureReadinessDir()
			if err != nil {
				return fmt.Errorf("setup readiness directory: %w", err)
			}
			logFile, err := logging.Setup(dir, "readiness-worker", logging.ParseLevel(cfg.Daemon.LogLevel))
			if err != nil {
				return fmt.Errorf("setup logging: %w", err)
			}
			defer logFile.Close()

			engine, err := scoring.NewEngine(cfg.Scoring, slog.Default())
			if err != nil {
				return exitError(3, "invalid scoring policy: %v", err)
			}

			conn, err := queue.NewConnection(cfg.Queue.URL, queuesFor(cfg))
			if err != nil {
				return fmt.Errorf("connect queue: %w", err)
			}
			defer conn.Close()

			producer := queue.NewProducer(conn, conn.Queues(), queue.DefaultProducerConfig())
			consumer := queue.NewConsumer(conn, queue.ScoreHandler(engine), producer, queue.ConsumerConfig{
				Workers:    cfg.Queue.Workers,
				Prefetch:   cfg.Queue.Prefetch,
				JobTimeout: jobTimeout,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := consumer.Start(ctx); err != nil {
				return fmt.Errorf("start consumer: %w", err)
			}

			<-ctx.Done()
			slog.Info("received signal, stopping worker")
			consumer.Stop()
			return nil
		},
	}

	cmd.Flags().DurationVar(&jobTimeout, "job-timeout", 10*time.Second, "Deadline for scoring a single job")
	return cmd
}
