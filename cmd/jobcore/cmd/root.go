package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sourceforge-bot/jobcore/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

// NewRootCmd собирает корневую команду jobcore: serve запускает сам
// сервис, jobs/audit — операторский клиент поверх HTTP-поверхности и
// RabbitMQ соответственно.
func NewRootCmd() *cobra.Command {
	var apiURL string
	var jsonOutput bool

	root := &cobra.Command{
		Use:           "jobcore",
		Short:         "jobcore — webhook-driven background job subsystem",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "jobcore HTTP surface URL")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	root.AddCommand(
		NewServeCmd(),
		cli.NewJobsCmd(clientFn, outputFn),
		cli.NewAuditCmd(outputFn),
	)

	return root
}
