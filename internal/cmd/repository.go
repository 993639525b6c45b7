package cmd

import (
	"context"
	"errors"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/3leaps/contentctl/internal/config"
	"github.com/3leaps/contentctl/internal/observability"
	"github.com/3leaps/contentctl/pkg/katello"
)

var repositoryCmd = &cobra.Command{
	Use:     "repository",
	Aliases: []string{"repo"},
	Short:   "Manage repository content",
}

func init() {
	rootCmd.AddCommand(repositoryCmd)
}

// repositoryFlags identify the target repository.
type repositoryFlags struct {
	id                string
	name              string
	product           string
	productID         string
	organization      string
	organizationID    string
	organizationLabel string
}

func (f *repositoryFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.id, "id", "", "Repository ID")
	fs.StringVar(&f.name, "name", "", "Repository name (requires --product or --product-id)")
	fs.StringVar(&f.product, "product", "", "Product name (requires an organization option)")
	fs.StringVar(&f.productID, "product-id", "", "Product ID")
	fs.StringVar(&f.organization, "organization", "", "Organization name")
	fs.StringVar(&f.organizationID, "organization-id", "", "Organization ID")
	fs.StringVar(&f.organizationLabel, "organization-label", "", "Organization label")
}

func (f *repositoryFlags) ref() katello.RepositoryRef {
	return katello.RepositoryRef{
		ID:                f.id,
		Name:              f.name,
		ProductID:         f.productID,
		ProductName:       f.product,
		OrganizationID:    f.organizationID,
		OrganizationName:  f.organization,
		OrganizationLabel: f.organizationLabel,
	}
}

func newClient(cfg *config.Config) (*katello.Client, error) {
	return katello.New(katello.Config{
		BaseURL:            cfg.Server.URL,
		Username:           cfg.Server.Username,
		Password:           cfg.Server.Password,
		Timeout:            cfg.Server.Timeout,
		InsecureSkipVerify: cfg.Server.InsecureSkipVerify,
		CAFile:             cfg.Server.CAFile,
		RateLimit:          cfg.Upload.RateLimit,
		LookupAttempts:     cfg.Lookup.Attempts,
		LookupDelay:        cfg.Lookup.Delay,
		UserAgent:          "contentctl/" + versionInfo.Version,
		Logger:             observability.CLILogger.Named("katello"),
	})
}

// connect validates the server settings, builds a client and resolves the
// target repository id.
func connect(ctx context.Context, ref katello.RepositoryRef) (*katello.Client, string, error) {
	if err := appConfig.Validate(); err != nil {
		return nil, "", exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	client, err := newClient(appConfig)
	if err != nil {
		return nil, "", exitError(foundry.ExitInvalidArgument, "Invalid server settings", err)
	}

	repoID, err := client.ResolveRepositoryID(ctx, ref)
	if err != nil {
		return nil, "", lookupExitError(err)
	}
	observability.CLILogger.Debug("Resolved repository",
		zap.String("repository_id", repoID),
		zap.String("request_id", client.RequestID()))
	return client, repoID, nil
}

// refExitError maps an invalid combination of repository options.
func refExitError(err error) error {
	if errors.Is(err, katello.ErrIDWithProduct) {
		return exitError(foundry.ExitInvalidArgument, "Cannot specify both product options and repository ID.", err)
	}
	return exitError(foundry.ExitInvalidArgument, "Invalid repository options", err)
}

func lookupExitError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return exitError(foundry.ExitSignalInt, "Cancelled", err)
	case katello.IsNotFound(err), errors.Is(err, katello.ErrAmbiguous):
		return exitError(foundry.ExitInvalidArgument, "Could not identify repository", err)
	case katello.IsUnauthorized(err):
		return exitError(foundry.ExitInvalidArgument, "Authentication failed", err)
	default:
		return exitError(foundry.ExitExternalServiceUnavailable, "Repository lookup failed", err)
	}
}
