package s3

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/contentctl/pkg/provider"
)

// Source lists and reads upload inputs stored in an S3 bucket.
type Source struct {
	client  *s3.Client
	bucket  string
	maxKeys int
}

var _ provider.Provider = (*Source)(nil)

// New creates a Source for the configured bucket.
//
// Credentials come from the AWS SDK v2 default chain unless explicit keys
// are set in cfg.
func New(ctx context.Context, cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &provider.ProviderError{
			Op:       "New",
			Provider: provider.ProviderS3,
			Bucket:   cfg.Bucket,
			Err:      err,
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	return &Source{
		client:  client,
		bucket:  cfg.Bucket,
		maxKeys: maxKeys,
	}, nil
}

// loadAWSConfig resolves region, profile and credentials for the client.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	awsCfg.Region = resolveRegion(cfg.Endpoint, awsCfg.Region)

	return awsCfg, nil
}

// List returns a page of objects with the given prefix.
func (s *Source) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	maxKeys := clampMaxKeys(opts.MaxKeys, s.maxKeys)

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(int32(maxKeys)),
	}

	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}

	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	output, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, s.wrapError("List", "", err)
	}

	objects := make([]provider.ObjectSummary, 0, len(output.Contents))
	for _, obj := range output.Contents {
		objects = append(objects, provider.ObjectSummary{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         cleanETag(aws.ToString(obj.ETag)),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}

	result := &provider.ListResult{
		Objects:     objects,
		IsTruncated: aws.ToBool(output.IsTruncated),
	}

	if output.NextContinuationToken != nil {
		result.ContinuationToken = *output.NextContinuationToken
	}

	return result, nil
}

// ListWithDelimiter returns the objects and child prefixes directly under
// opts.Prefix.
func (s *Source) ListWithDelimiter(ctx context.Context, opts provider.ListWithDelimiterOptions) (*provider.ListWithDelimiterResult, error) {
	delimiter := opts.Delimiter
	if delimiter == "" {
		delimiter = "/"
	}

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Delimiter: aws.String(delimiter),
		MaxKeys:   aws.Int32(int32(clampMaxKeys(opts.MaxKeys, s.maxKeys))),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	output, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, s.wrapError("ListWithDelimiter", opts.Prefix, err)
	}

	result := &provider.ListWithDelimiterResult{
		Objects:        make([]provider.ObjectSummary, 0, len(output.Contents)),
		CommonPrefixes: make([]string, 0, len(output.CommonPrefixes)),
		IsTruncated:    aws.ToBool(output.IsTruncated),
	}
	for _, obj := range output.Contents {
		result.Objects = append(result.Objects, provider.ObjectSummary{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         cleanETag(aws.ToString(obj.ETag)),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	for _, cp := range output.CommonPrefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, aws.ToString(cp.Prefix))
	}
	if output.NextContinuationToken != nil {
		result.ContinuationToken = *output.NextContinuationToken
	}

	return result, nil
}

// Head returns metadata for a single object.
func (s *Source) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	input := &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}

	output, err := s.client.HeadObject(ctx, input)
	if err != nil {
		return nil, s.wrapError("Head", key, err)
	}

	meta := &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{
			Key:          key,
			Size:         aws.ToInt64(output.ContentLength),
			ETag:         cleanETag(aws.ToString(output.ETag)),
			LastModified: aws.ToTime(output.LastModified),
		},
		ContentType: aws.ToString(output.ContentType),
		Metadata:    output.Metadata,
	}

	return meta, nil
}

// GetObject streams an object body.
//
// The returned length is the object's content length, or -1 when the
// service did not report one.
func (s *Source) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, s.wrapError("GetObject", key, err)
	}

	size := int64(-1)
	if output.ContentLength != nil {
		size = *output.ContentLength
	}
	return output.Body, size, nil
}

// Close releases any resources held by the source.
// The S3 client doesn't require explicit cleanup.
func (s *Source) Close() error {
	return nil
}

// errorCodes maps S3 error codes to provider sentinels.
var errorCodes = map[string]error{
	"NoSuchKey":             provider.ErrNotFound,
	"NotFound":              provider.ErrNotFound,
	"NoSuchBucket":          provider.ErrBucketNotFound,
	"AccessDenied":          provider.ErrAccessDenied,
	"Forbidden":             provider.ErrAccessDenied,
	"InvalidAccessKeyId":    provider.ErrInvalidCredentials,
	"SignatureDoesNotMatch": provider.ErrInvalidCredentials,
	"SlowDown":              provider.ErrThrottled,
	"Throttling":            provider.ErrThrottled,
	"RequestLimitExceeded":  provider.ErrThrottled,
	"ServiceUnavailable":    provider.ErrProviderUnavailable,
	"InternalError":         provider.ErrProviderUnavailable,
}

// messageHints classify errors that carry no API code, in match order.
var messageHints = []struct {
	needles []string
	err     error
}{
	{[]string{"NoSuchBucket"}, provider.ErrBucketNotFound},
	{[]string{"NoSuchKey", "NotFound", "StatusCode: 404"}, provider.ErrNotFound},
	{[]string{"AccessDenied", "Forbidden", "StatusCode: 403"}, provider.ErrAccessDenied},
	{[]string{"InvalidAccessKeyId", "SignatureDoesNotMatch"}, provider.ErrInvalidCredentials},
	{[]string{"SlowDown", "Throttling", "StatusCode: 429"}, provider.ErrThrottled},
	{[]string{"ServiceUnavailable", "StatusCode: 503"}, provider.ErrProviderUnavailable},
}

// wrapError converts an S3 error into a *provider.ProviderError carrying a
// provider sentinel when the failure is recognized.
func (s *Source) wrapError(op, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderS3,
		Bucket:   s.bucket,
		Key:      key,
		Err:      err,
	}

	var (
		notFound     *types.NotFound
		noSuchKey    *types.NoSuchKey
		noSuchBucket *types.NoSuchBucket
		apiErr       smithy.APIError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		wrapped.Err = provider.ErrNotFound
		return wrapped
	case errors.As(err, &noSuchBucket):
		wrapped.Err = provider.ErrBucketNotFound
		return wrapped
	case errors.As(err, &apiErr):
		if sentinel, ok := errorCodes[apiErr.ErrorCode()]; ok {
			wrapped.Err = sentinel
		}
		return wrapped
	}

	msg := err.Error()
	for _, hint := range messageHints {
		for _, needle := range hint.needles {
			if strings.Contains(msg, needle) {
				wrapped.Err = hint.err
				return wrapped
			}
		}
	}
	return wrapped
}

// cleanETag strips the quotes S3 puts around ETags.
func cleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}

// clampMaxKeys falls back to providerDefault for non-positive requests
// and caps the result at MaxAllowedKeys.
func clampMaxKeys(requested, providerDefault int) int {
	if requested <= 0 {
		requested = providerDefault
	}
	return min(requested, MaxAllowedKeys)
}

// resolveRegion picks the region after SDK loading. The SDK has already
// applied the explicit region, environment and profile; only AWS itself
// (no custom endpoint) falls back to DefaultAWSRegion.
func resolveRegion(endpoint, sdkRegion string) string {
	switch {
	case sdkRegion != "":
		return sdkRegion
	case endpoint == "":
		return DefaultAWSRegion
	default:
		return ""
	}
}
