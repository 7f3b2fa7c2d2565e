// Command blogctl runs maintenance tasks against the weblog database:
// migrations, imports, search reindexing and staff accounts.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"weblog/internal/config"
	"weblog/internal/db"
	"weblog/internal/logger"
	"weblog/internal/search"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	root := &cobra.Command{
		Use:          "blogctl",
		Short:        "Maintenance commands for the weblog",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Set(logger.New(logger.Options{Level: cfg.LogLevel, Pretty: true, Writer: cmd.ErrOrStderr()}))
			// The process exits when the command returns, so index inline.
			search.GetIndexer().SetSynchronous(true)
		},
	}
	root.AddCommand(
		migrateCmd(cfg),
		importCmd(cfg),
		importJSONCmd(cfg),
		importFeedCmd(cfg),
		reindexCmd(cfg),
		createStaffCmd(cfg),
		fetchCloudflareIPsCmd(cfg),
		validateFeedsCmd(cfg),
	)
	return root
}

// connect opens and migrates the database, installing db.DB. An already
// installed connection is reused.
func connect(cfg *config.Config) {
	if db.DB != nil {
		return
	}
	db.Init(cfg.DatabaseURL, cfg.Debug)
	log.Debug().Msg("connected")
}
