// Package s3 reads upload inputs from AWS S3 and S3-compatible storage.
package s3

// Config configures an S3 source.
//
// Credentials follow the AWS SDK v2 default chain (environment, shared
// files, instance or task roles) unless AccessKeyID and SecretAccessKey
// are both set. For S3-compatible stores (MinIO, Wasabi) set Endpoint and
// usually ForcePathStyle; no default region is applied in that case.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string

	// Region defaults to us-east-1 for AWS when neither the environment
	// nor the profile sets one.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	Endpoint string

	// Profile selects a shared config profile.
	Profile string

	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle puts the bucket in the path instead of the host.
	ForcePathStyle bool

	// MaxKeys is the default list page size. Values over 1000 are clamped.
	MaxKeys int
}

// DefaultMaxKeys is the default page size for List operations.
const DefaultMaxKeys = 1000

// MaxAllowedKeys is the maximum page size allowed by S3.
const MaxAllowedKeys = 1000

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}
