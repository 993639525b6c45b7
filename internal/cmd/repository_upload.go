package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/contentctl/internal/config"
	"github.com/3leaps/contentctl/internal/observability"
	"github.com/3leaps/contentctl/pkg/fileset"
	"github.com/3leaps/contentctl/pkg/match"
	"github.com/3leaps/contentctl/pkg/output"
	"github.com/3leaps/contentctl/pkg/provider"
	"github.com/3leaps/contentctl/pkg/source"
	"github.com/3leaps/contentctl/pkg/source/s3"
	"github.com/3leaps/contentctl/pkg/upload"
)

var (
	uploadRepo                 repositoryFlags
	uploadPath                 string
	uploadContentType          string
	uploadOstreeRepositoryName string
	uploadContinueOnError      bool
	uploadS3Region             string
	uploadS3Profile            string
	uploadS3Endpoint           string
)

var uploadContentCmd = &cobra.Command{
	Use:   "upload-content",
	Short: "Upload content into a repository",
	Long: `Upload files into a repository using chunked upload sessions.

--path accepts a file, a directory (its direct, non-hidden files), a glob
such as "dist/**/*.rpm", or an object storage URI such as
s3://bucket/builds/**/*.rpm. A trailing "/" on an object URI selects the
objects directly under that prefix.

Inputs are uploaded one at a time in sorted order. Only the last input is
imported with publishing enabled, so the repository is published once per
run. By default the first failure stops the run; --continue-on-error
uploads the remaining inputs and reports every failure.

Output:
- text (default): one line per uploaded file on stdout, failures on stderr
- jsonl: contentctl.upload.v1 / contentctl.error.v1 records and a final
  contentctl.summary.v1 record on stdout`,
	Example: `  contentctl repository upload-content --id 42 --path ./rpms
  contentctl repository upload-content --name zoo --product animals \
      --organization ACME --path 'build/**/*.rpm'
  contentctl repository upload-content --id 42 --path s3://artifacts/release/ -o jsonl`,
	Args: cobra.NoArgs,
	RunE: runUploadContent,
}

func init() {
	repositoryCmd.AddCommand(uploadContentCmd)

	f := uploadContentCmd.Flags()
	uploadRepo.register(f)
	f.StringVar(&uploadPath, "path", "", "File, directory, glob or s3:// URI to upload (required)")
	f.StringVar(&uploadContentType, "content-type", "", "Content type of the inputs (server default when empty)")
	f.StringVar(&uploadOstreeRepositoryName, "ostree-repository-name", "", "Name of the ostree repository inside an archive")
	f.Int("chunk-size", upload.DefaultChunkSize, fmt.Sprintf("Bytes per update call (max %d)", upload.MaxChunkSize))
	f.BoolVar(&uploadContinueOnError, "continue-on-error", false, "Keep uploading after a failed input")
	f.StringVar(&uploadS3Region, "s3-region", "", "AWS region for s3:// inputs")
	f.StringVar(&uploadS3Profile, "s3-profile", "", "AWS profile for s3:// inputs")
	f.StringVar(&uploadS3Endpoint, "s3-endpoint", "", "Custom S3 endpoint for s3:// inputs")
	_ = uploadContentCmd.MarkFlagRequired("path")
}

func runUploadContent(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := observability.CLILogger

	ref := uploadRepo.ref()
	if err := ref.Validate(); err != nil {
		return refExitError(err)
	}

	buckets := source.NewBuckets(s3Factory(uploadS3Region, uploadS3Profile, uploadS3Endpoint))
	defer func() { _ = buckets.Close() }()

	refs, err := fileset.NewResolver(buckets, log).Resolve(ctx, uploadPath)
	if err != nil {
		return resolveExitError(uploadPath, err)
	}
	log.Debug("Resolved upload inputs", zap.String("path", uploadPath), zap.Int("count", len(refs)))

	client, repoID, err := connect(ctx, ref)
	if err != nil {
		return err
	}

	policy := upload.FailFast
	if uploadContinueOnError {
		policy = upload.ContinueOnError
	}

	var (
		reporter upload.Reporter
		records  *upload.RecordReporter
	)
	if appConfig.Output.Format == config.OutputJSONL {
		w := output.NewJSONLWriter(cmd.OutOrStdout(), client.RequestID(), repoID)
		defer func() { _ = w.Close() }()
		records = upload.NewRecordReporter(w)
		reporter = records
	} else {
		reporter = &upload.TextReporter{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()}
	}

	uploader := upload.New(client, source.NewRouter(buckets), reporter, upload.Config{
		RepositoryID:         repoID,
		ChunkSize:            appConfig.Upload.ChunkSize,
		ContentType:          uploadContentType,
		OstreeRepositoryName: uploadOstreeRepositoryName,
		Policy:               policy,
		Logger:               log.Named("upload"),
	})

	sum, runErr := uploader.Run(ctx, refs)
	if records != nil {
		if err := records.Finish(ctx, sum); err != nil {
			log.Warn("Failed to write summary record", zap.Error(err))
		}
	}
	if sum != nil {
		log.Debug("Upload finished",
			zap.String("repository_id", repoID),
			zap.Int("files", sum.Files),
			zap.Int("uploaded", sum.Uploaded),
			zap.Int("failed", sum.Failed),
			zap.Int64("bytes", sum.Bytes),
			zap.Duration("duration", sum.Duration))
	}

	switch {
	case errors.Is(runErr, context.Canceled):
		return exitError(foundry.ExitSignalInt, "Upload cancelled", runErr)
	case errors.Is(runErr, upload.ErrInvalidChunkSize):
		return exitError(foundry.ExitInvalidArgument, "Invalid --chunk-size value", runErr)
	case runErr != nil:
		return exitError(ExitDataErr, "Repository content upload failed", runErr)
	case sum.Err() != nil:
		return exitError(ExitDataErr, "Repository content upload failed", sum.Err())
	}

	log.Info("Repository content uploaded.", zap.Int("files", sum.Uploaded), zap.Int64("bytes", sum.Bytes))
	return nil
}

// s3Factory opens one S3 source per bucket referenced by the inputs.
func s3Factory(region, profile, endpoint string) source.Factory {
	return func(ctx context.Context, bucket string) (provider.Provider, error) {
		src, err := s3.New(ctx, s3.Config{
			Bucket:         bucket,
			Region:         region,
			Profile:        profile,
			Endpoint:       endpoint,
			ForcePathStyle: endpoint != "",
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

func resolveExitError(path string, err error) error {
	var patErr *match.PatternError
	switch {
	case fileset.IsNoInput(err):
		return exitError(ExitNoInput, fmt.Sprintf("Could not find any files matching %s", path), err)
	case errors.Is(err, context.Canceled):
		return exitError(foundry.ExitSignalInt, "Upload cancelled", err)
	case errors.As(err, &patErr),
		errors.Is(err, source.ErrInvalidURI),
		errors.Is(err, source.ErrUnsupportedProvider),
		errors.Is(err, source.ErrMissingBucket):
		return exitError(foundry.ExitInvalidArgument, "Invalid --path value", err)
	case errors.Is(err, source.ErrNoObjectStorage):
		return exitError(foundry.ExitInvalidArgument, "Object storage inputs are not available", err)
	case provider.IsAuthFailure(err):
		return exitError(foundry.ExitInvalidArgument, "Object storage access denied", err)
	case provider.IsUnavailable(err), isS3ConfigError(err):
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	default:
		return exitError(foundry.ExitFileReadError, "Failed to read upload inputs", err)
	}
}

func isS3ConfigError(err error) bool {
	var cfgErr *s3.ConfigError
	return errors.As(err, &cfgErr)
}
