package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/strandhq/strand/pkg/cmd"
	"github.com/strandhq/strand/pkg/log"
	"github.com/strandhq/strand/pkg/triggers/email"
	"github.com/strandhq/strand/pkg/triggers/queue"
	"github.com/strandhq/strand/pkg/triggers/schedule"
	"github.com/strandhq/strand/pkg/triggers/webhook"
)

func main() {
	command := &cli.Command{
		Name:                  "strand-activator",
		Usage:                 "Run deployment triggers and create executions from their firings",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewValidateCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "activator-id",
				Aliases: []string{"id"},
				Usage:   "Custom activator ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ACTIVATOR_ID"),
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
			&cli.IntFlag{
				Name:    "webhook-port",
				Usage:   "Port for the shared webhook HTTP server",
				Value:   8085,
				Sources: cli.EnvVars("WEBHOOK_PORT"),
			},
			&cli.IntFlag{
				Name:    "email-port",
				Usage:   "Port for the inbound email intake server",
				Value:   8086,
				Sources: cli.EnvVars("EMAIL_PORT"),
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
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			activatorID := command.String("activator-id")
			if activatorID == "" {
				activatorID = "activator-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("strand-activator").With("activator_id", activatorID)
			logger.InfoContext(ctx, "Initializing Strand Activator")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "strand-activator", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			objects := cmd.NewObjectStore(
				logger,
				command.String("object-store-path"),
				command.String("base-url"),
				command.String("signing-secret"),
			)

			// One shared webhook server and one shared email intake serve
			// every trigger in the process; triggers claim paths and
			// addresses on them as deployments come and go.
			webhookManager := webhook.NewServerManager(fmt.Sprintf(":%d", command.Int("webhook-port")), logger)
			emailIntake := email.NewIntake(fmt.Sprintf(":%d", command.Int("email-port")), objects, logger)

			registry := cmd.NewRegistry(logger, "")
			registry.RegisterTrigger(webhook.NewFactory(webhookManager))
			registry.RegisterTrigger(email.NewFactory(emailIntake))
			registry.RegisterTrigger(queue.NewFactory())

			poller := schedule.NewPoller(persistence.ScheduleRepository(), logger)

			activator := NewActivator(
				activatorID,
				persistence,
				eventBus,
				registry,
				poller,
				logger,
			)

			activator.Start(ctx)

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
