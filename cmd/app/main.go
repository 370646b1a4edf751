package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// envFile задаёт путь к .env, общий для всех команд
var envFile string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "articles",
		Short: "Articles catalog service",
		Long: `Articles catalog: REST API over articles with xlsx import and export.

Without a subcommand the HTTP server is started (same as "articles serve").

Examples:
  articles                          # start the HTTP server
  articles migrate up               # apply Postgres migrations
  articles import --file in.xlsx    # import a spreadsheet
  articles export --file out.xlsx   # export the catalog
  articles env                      # list environment variables`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (default: ./.env if present)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newImportCommand())
	root.AddCommand(newExportCommand())
	root.AddCommand(newEnvCommand())
	return root
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
