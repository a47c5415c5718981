package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/strandhq/strand/pkg/cmd"
	"github.com/strandhq/strand/pkg/config"
	"github.com/strandhq/strand/pkg/integrations"
	"github.com/strandhq/strand/pkg/log"
	"github.com/strandhq/strand/pkg/persistence"
)

func main() {
	command := &cli.Command{
		Name:                  "strand-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to run workflow executions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (kafka, memory)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing node plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "object-store-path",
				Usage:   "Directory backing the artifact object store",
				Value:   "./objects",
				Sources: cli.EnvVars("OBJECT_STORE_PATH"),
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "Public base URL used in presigned object links",
				Sources: cli.EnvVars("BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "signing-secret",
				Usage:   "HMAC secret for presigned object links (disabled if empty)",
				Sources: cli.EnvVars("SIGNING_SECRET"),
			},
			&cli.StringFlag{
				Name:    "oauth-config",
				Usage:   "Path to the OAuth provider configuration file",
				Sources: cli.EnvVars("OAUTH_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("strand-worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing Strand Worker")

			registry := cmd.NewRegistry(logger, command.String("plugins-path"))

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			// The dispatch bus shares one consumer group across all workers so
			// each execution lands on exactly one of them. The control bus uses
			// a per-worker group so every worker sees cancel and pause requests
			// and the one owning the execution applies them.
			dispatchBus := cmd.NewEventBus(command.String("event-bus"), "strand-worker", logger)
			defer func() {
				if err := dispatchBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close dispatch bus", "error", err)
				}
			}()

			controlBus := cmd.NewEventBus(command.String("event-bus"), "strand-worker-"+workerID, logger)
			defer func() {
				if err := controlBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close control bus", "error", err)
				}
			}()

			objects := cmd.NewObjectStore(
				logger,
				command.String("object-store-path"),
				command.String("base-url"),
				command.String("signing-secret"),
			)

			tokens := newTokenManager(persistence, command.String("oauth-config"), logger)

			worker := NewWorkerManager(
				workerID,
				persistence,
				dispatchBus,
				controlBus,
				registry,
				tokens,
				objects,
				logger,
			)

			if err := worker.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

// newTokenManager builds the integration token manager. Without an OAuth
// provider configuration expired integrations fail instead of refreshing.
func newTokenManager(store persistence.Persistence, configPath string, logger *slog.Logger) *integrations.Manager {
	providers := config.LoadOAuthConfigOrDefault(configPath)
	if len(providers) == 0 {
		return integrations.NewManager(store, nil, logger)
	}

	endpoints := make(map[string]integrations.Endpoint, len(providers))
	for _, provider := range providers {
		endpoints[provider.Provider] = integrations.Endpoint{
			TokenURL:     provider.TokenURL,
			ClientID:     provider.ClientID,
			ClientSecret: provider.ClientSecret,
		}
	}

	return integrations.NewManager(store, integrations.NewOAuthRefresher(endpoints, nil), logger)
}
