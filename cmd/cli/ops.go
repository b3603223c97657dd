package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	postgresRepo "github.com/iho/fundscore/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/fundscore/internal/adapter/repository/redis"
	"github.com/iho/fundscore/internal/infrastructure/eventpublisher"
	"github.com/iho/fundscore/internal/infrastructure/postgres"
	"github.com/iho/fundscore/internal/infrastructure/redis"
)

func databaseFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
}

func migrateCmd() *cobra.Command {
	var databaseURL, path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "migrations", "Migrations directory")

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return errors.New("--database-url is required")
			}
			return postgres.RunMigrations(databaseURL, path, cliLogger(cmd))
		},
	}
	databaseFlag(upCmd, &databaseURL)

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return errors.New("--database-url is required")
			}
			return postgres.RunMigrationsDown(databaseURL, path, cliLogger(cmd))
		},
	}
	databaseFlag(downCmd, &databaseURL)

	cmd.AddCommand(upCmd, downCmd)
	return cmd
}

func outboxCmd() *cobra.Command {
	var (
		databaseURL string
		redisURL    string
		stream      string
		batchSize   int
	)

	relayCmd := &cobra.Command{
		Use:   "relay",
		Short: "Publish pending outbox events once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return errors.New("--database-url is required")
			}
			ctx := cmd.Context()
			logger := cliLogger(cmd)

			pool, err := postgres.NewPool(ctx, databaseURL, 2, 0)
			if err != nil {
				return err
			}
			defer pool.Close()

			var sink eventpublisher.Publisher = eventpublisher.NewLogPublisher(logger)
			if redisURL != "" {
				client, err := redis.NewClient(ctx, redisURL)
				if err != nil {
					return err
				}
				defer client.Close()
				sink = redisRepo.NewStreamPublisher(client, stream, 0)
			}

			publisher := eventpublisher.NewEventPublisher(eventpublisher.Config{
				OutboxRepo: postgresRepo.NewOutboxRepository(pool),
				Publisher:  sink,
				Logger:     logger,
				BatchSize:  batchSize,
			})
			n, err := publisher.Flush(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d events\n", n)
			return nil
		},
	}
	databaseFlag(relayCmd, &databaseURL)
	relayCmd.Flags().StringVar(&redisURL, "redis-url", "", "Publish to a Redis stream instead of the log")
	relayCmd.Flags().StringVar(&stream, "stream", redisRepo.DefaultStream, "Redis stream name")
	relayCmd.Flags().IntVar(&batchSize, "batch-size", 100, "Events to publish")

	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Outbox event tools",
	}
	cmd.AddCommand(relayCmd)
	return cmd
}

func cliLogger(cmd *cobra.Command) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
}
