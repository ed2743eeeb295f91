// Command orcamento proposes, adjusts and confirms household budgets.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"orcamento/internal/amqp"
	"orcamento/internal/cli"
	"orcamento/internal/config"
	"orcamento/internal/log"
	"orcamento/internal/services"
)

var flagHousehold string

var rootCmd = &cobra.Command{
	Use:           "orcamento",
	Short:         "Household budget allocation",
	Long:          "Generate a percentage budget from a household profile, adjust it against the IF buffer and confirm it.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagHousehold, "household", "H", "default", "Household id")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err.Error()))
		os.Exit(1)
	}
}

// app carries what a command needs once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	svc    *services.BudgetService
}

func loadConfig() (*config.Config, *log.Logger, error) {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(os.Stderr, cfg.LogLevel).WithComponent(log.ComponentCLI)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openApp opens storage and the budget service. The publisher is only
// dialed when the command may confirm an allocation.
func openApp(ctx context.Context, withPublisher bool) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	res, err := cli.InitStore(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}

	var publisher services.Publisher
	if withPublisher && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, export waits for the worker's periodic pass", log.FieldError, err)
		} else {
			publisher = client
		}
	}

	svc, err := cli.NewBudgetService(logger, cfg, res.Store, publisher)
	if err != nil {
		_ = res.Cleanup()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, svc: svc}, nil
}

func (a *app) Close() {
	if err := a.svc.Close(); err != nil {
		a.logger.Error("Failed to close", log.FieldError, err)
	}
}
