package cli

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type MigrateOptions struct {
	*RootOptions
	Version int
	Force   int
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the contact table migrations",
		Long: `Apply the db/pg migrations to the configured Postgres database.

Without --version the schema is moved to the newest migration.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Version, "version", 0, "target migration version (0 = latest)")
	cmd.Flags().IntVar(&opts.Force, "force", 0, "force the recorded version before migrating")

	return cmd
}

func runMigrate(cmd *cobra.Command, opts *MigrateOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if cfg.UsesMemoryStore() {
		return errors.New("DB_DRIVER=memory has no schema to migrate")
	}
	if cmd.Flags().Changed("version") {
		cfg.DatabaseMigrationVersion = opts.Version
	}
	if cmd.Flags().Changed("force") {
		cfg.DatabaseMigrationForce = opts.Force
	}

	logger, flush, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	defer flush()

	db, err := openDatabase(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := newMigrationService(cfg, logger).MigratePostgres(db); err != nil {
		return errors.Wrap(err, "migration failed")
	}
	logger.Info("Migrations applied")
	return nil
}
