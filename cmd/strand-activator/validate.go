package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/strandhq/strand/pkg/cmd"
	"github.com/strandhq/strand/pkg/engine"
	"github.com/strandhq/strand/pkg/log"
	"github.com/strandhq/strand/pkg/services"
)

var ErrInvalidWorkflows = errors.New("invalid workflows found")

// NewValidateCommand validates every stored workflow graph against the node
// catalog, the same check publishing performs, and reports per-workflow
// results.
func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate stored workflow graphs against the node catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing node plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("strand-activator").With("action", "validate")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			registry := cmd.NewRegistry(logger, command.String("plugins-path"))
			validator := engine.NewValidator(registry)
			workflowService := services.NewWorkflow(persistence)

			result, err := workflowService.List(ctx, services.ListWorkflowsRequest{
				Limit:     100,
				SortBy:    "created_at",
				SortOrder: "desc",
			})
			if err != nil {
				return fmt.Errorf("failed to fetch workflows: %w", err)
			}

			_, _ = fmt.Fprintln(os.Stdout, "Workflow Graph Validation Results:")
			_, _ = fmt.Fprintln(os.Stdout, "==================================")

			valid := 0
			invalid := 0

			for _, workflow := range result.Workflows {
				_, _ = fmt.Fprintf(os.Stdout, "\nWorkflow: %s (%s, %s)\n", workflow.Name, workflow.ID, workflow.Status)

				if err := validator.Validate(workflow); err != nil {
					invalid++

					var validationErr *engine.ValidationError
					if errors.As(err, &validationErr) {
						for _, issue := range validationErr.Issues {
							_, _ = fmt.Fprintf(os.Stdout, "  ❌ %v\n", issue)
						}
					} else {
						_, _ = fmt.Fprintf(os.Stdout, "  ❌ %v\n", err)
					}

					continue
				}

				valid++

				_, _ = fmt.Fprintln(os.Stdout, "  ✅ VALID")
			}

			_, _ = fmt.Fprintf(os.Stdout, "\nValidation Summary:\n")
			_, _ = fmt.Fprintf(os.Stdout, "  Total workflows: %d\n", valid+invalid)
			_, _ = fmt.Fprintf(os.Stdout, "  Valid:           %d\n", valid)
			_, _ = fmt.Fprintf(os.Stdout, "  Invalid:         %d\n", invalid)

			if invalid > 0 {
				return fmt.Errorf("%w: %d", ErrInvalidWorkflows, invalid)
			}

			return nil
		},
	}
}
