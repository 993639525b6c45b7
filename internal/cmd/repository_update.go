package cmd

import (
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/contentctl/internal/observability"
	"github.com/3leaps/contentctl/pkg/katello"
	"github.com/3leaps/contentctl/pkg/upload"
)

var (
	updateRepo        repositoryFlags
	updateDockerTag   string
	updateDigest      string
	updateDescription string
	updateURL         string
	updatePublishHTTP bool
)

var repositoryUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update a repository or tag a manifest",
	Long: `Update repository attributes, or attach a container tag to a manifest
that is already in the repository.

With --docker-tag and --docker-digest the command only uploads the tag;
the repository is published as part of that import. Otherwise the given
attributes are sent as a repository update.`,
	Example: `  contentctl repository update --id 42 --docker-tag latest \
      --docker-digest sha256:5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03
  contentctl repository update --id 42 --description "Nightly builds"`,
	Args: cobra.NoArgs,
	RunE: runRepositoryUpdate,
}

func init() {
	repositoryCmd.AddCommand(repositoryUpdateCmd)

	f := repositoryUpdateCmd.Flags()
	updateRepo.register(f)
	f.StringVar(&updateDockerTag, "docker-tag", "", "Container tag to create (requires --docker-digest)")
	f.StringVar(&updateDigest, "docker-digest", "", "Manifest digest the tag points at (requires --docker-tag)")
	f.StringVar(&updateDescription, "description", "", "Repository description")
	f.StringVar(&updateURL, "url", "", "Upstream feed URL")
	f.BoolVar(&updatePublishHTTP, "publish-via-http", false, "Publish the repository over plain HTTP")
}

func runRepositoryUpdate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	switch {
	case updateDockerTag != "" && updateDigest == "":
		return exitError(foundry.ExitInvalidArgument, "--docker-digest required with --docker-tag", nil)
	case updateDigest != "" && updateDockerTag == "":
		return exitError(foundry.ExitInvalidArgument, "--docker-tag required with --docker-digest", nil)
	}

	ref := updateRepo.ref()
	if err := ref.Validate(); err != nil {
		return refExitError(err)
	}

	if updateDockerTag != "" {
		dgst, err := digest.Parse(updateDigest)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --docker-digest value", err)
		}
		client, repoID, err := connect(ctx, ref)
		if err != nil {
			return err
		}
		return uploadTag(cmd, client, repoID, updateDockerTag, dgst)
	}

	upd := katello.RepositoryUpdate{}
	if cmd.Flags().Changed("description") {
		upd.Description = &updateDescription
	}
	if cmd.Flags().Changed("url") {
		upd.URL = &updateURL
	}
	if cmd.Flags().Changed("publish-via-http") {
		upd.Unprotected = &updatePublishHTTP
	}
	if upd.Empty() {
		return exitError(foundry.ExitInvalidArgument, "Nothing to update",
			errors.New("provide --description, --url, --publish-via-http or --docker-tag"))
	}

	client, repoID, err := connect(ctx, ref)
	if err != nil {
		return err
	}
	if err := client.UpdateRepository(ctx, repoID, upd); err != nil {
		if katello.IsUnavailable(err) {
			return exitError(foundry.ExitExternalServiceUnavailable, "Could not update the repository", err)
		}
		return exitError(ExitDataErr, "Could not update the repository", err)
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Repository updated.")
	return nil
}

// uploadTag imports a tag for an existing manifest. Failures are reported
// as a single message and a data-error exit code.
func uploadTag(cmd *cobra.Command, svc upload.Service, repoID, tag string, dgst digest.Digest) error {
	log := observability.CLILogger
	u := upload.New(svc, nil, nil, upload.Config{
		RepositoryID: repoID,
		Policy:       upload.ContinueOnError,
		Logger:       log.Named("upload"),
	})

	res, err := u.UploadTag(cmd.Context(), tag, dgst.String())
	if err != nil {
		return exitError(ExitDataErr, "Tag upload failed", err)
	}
	if res.Err != nil {
		msg := fmt.Sprintf("Failed to upload tag '%s' to repository.", tag)
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), msg)
		return reportedError(ExitDataErr, msg, res.Err)
	}

	log.Debug("Tag uploaded",
		zap.String("tag", tag),
		zap.String("digest", dgst.String()),
		zap.String("upload_id", res.UploadID))
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Repository updated")
	return nil
}
