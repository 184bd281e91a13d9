package cli

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/repositories/contact"
	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
)

type IdentifyOptions struct {
	*RootOptions
	Email       string
	PhoneNumber string
	Memory      bool
}

// NewIdentifyCommand creates the identify command.
func NewIdentifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IdentifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Identify one observation and print the consolidated contact",
		Long: `Identify one observation against the configured store and print the
consolidated contact as JSON.

Example:
  fern identify --email mcfly@hillvalley.edu --phone 123456
  fern identify --phone 123456 --memory`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIdentify(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.PhoneNumber, "phone", "", "phone number")
	cmd.Flags().BoolVar(&opts.Memory, "memory", false, "use an empty in-memory store instead of Postgres")

	return cmd
}

func runIdentify(cmd *cobra.Command, opts *IdentifyOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger, flush, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	defer flush()

	ctx := fernctx.SetSource(cmd.Context(), fernctx.SourceCLI)

	var store identity.Store
	if opts.Memory || cfg.UsesMemoryStore() {
		store = identity.NewMemoryStore()
	} else {
		db, err := openDatabase(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		store = contact.NewRepository(db, logger)
	}

	view, err := identifyOnce(ctx, store, logger, opts.Email, opts.PhoneNumber)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(models.IdentifyResponse{Contact: *view})
}

func identifyOnce(ctx context.Context, store identity.Store, logger ectologger.Logger, email, phone string) (*models.IdentityView, error) {
	obs := identity.NewObservation(models.StringPtr(email), models.StringPtr(phone))
	result, err := identity.NewService(store, logger).Identify(ctx, obs)
	if err != nil {
		return nil, errors.Wrap(err, "identify failed")
	}
	return result.View, nil
}
