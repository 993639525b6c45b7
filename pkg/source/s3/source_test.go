package s3

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/contentctl/pkg/provider"
)

// mockAPIError implements smithy.APIError for testing error code mapping.
type mockAPIError struct {
	code    string
	message string
}

func (e *mockAPIError) Error() string                 { return fmt.Sprintf("%s: %s", e.code, e.message) }
func (e *mockAPIError) ErrorCode() string             { return e.code }
func (e *mockAPIError) ErrorMessage() string          { return e.message }
func (e *mockAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

var _ smithy.APIError = (*mockAPIError)(nil)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "empty bucket", config: Config{}, wantErr: "bucket name is required"},
		{name: "bucket only", config: Config{Bucket: "rpms"}},
		{
			name:   "explicit credentials",
			config: Config{Bucket: "rpms", AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "secret"},
		},
		{
			name:    "access key without secret",
			config:  Config{Bucket: "rpms", AccessKeyID: "AKIAEXAMPLE"},
			wantErr: "must be provided together",
		},
		{
			name:    "secret without access key",
			config:  Config{Bucket: "rpms", SecretAccessKey: "secret"},
			wantErr: "must be provided together",
		},
		{
			name:   "S3-compatible endpoint",
			config: Config{Bucket: "rpms", Endpoint: "http://localhost:9000", ForcePathStyle: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_ValidationError(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)

	var configErr *ConfigError
	assert.True(t, errors.As(err, &configErr))
	assert.Equal(t, "s3 config: Bucket: bucket name is required", err.Error())
}

func TestWrapError_TypedErrors(t *testing.T) {
	s := &Source{bucket: "rpms"}

	err := s.wrapError("GetObject", "el9/app.rpm", &types.NoSuchKey{})
	var provErr *provider.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, "GetObject", provErr.Op)
	assert.Equal(t, provider.ProviderS3, provErr.Provider)
	assert.Equal(t, "rpms", provErr.Bucket)
	assert.Equal(t, "el9/app.rpm", provErr.Key)
	assert.ErrorIs(t, err, provider.ErrNotFound)

	assert.ErrorIs(t, s.wrapError("List", "", &types.NoSuchBucket{}), provider.ErrBucketNotFound)
	assert.ErrorIs(t, s.wrapError("Head", "k", &types.NotFound{}), provider.ErrNotFound)
}

func TestWrapError_APIErrorCodes(t *testing.T) {
	s := &Source{bucket: "rpms"}

	for code, want := range errorCodes {
		t.Run(code, func(t *testing.T) {
			err := s.wrapError("List", "", &mockAPIError{code: code, message: "test"})
			assert.ErrorIs(t, err, want)
		})
	}

	t.Run("unknown code keeps original", func(t *testing.T) {
		orig := &mockAPIError{code: "Teapot", message: "short and stout"}
		err := s.wrapError("List", "", orig)
		var apiErr smithy.APIError
		assert.True(t, errors.As(err, &apiErr))
		assert.False(t, provider.IsNotFound(err))
	})
}

func TestWrapError_FromMessage(t *testing.T) {
	s := &Source{bucket: "rpms"}

	tests := []struct {
		name   string
		errMsg string
		want   error
	}{
		{"access denied", "AccessDenied: Access Denied", provider.ErrAccessDenied},
		{"403", "operation error: https response error StatusCode: 403", provider.ErrAccessDenied},
		{"no such key", "NoSuchKey: The specified key does not exist", provider.ErrNotFound},
		{"404", "operation error: https response error StatusCode: 404", provider.ErrNotFound},
		{"no such bucket", "NoSuchBucket: bucket does not exist", provider.ErrBucketNotFound},
		{"signature mismatch", "SignatureDoesNotMatch: invalid signature", provider.ErrInvalidCredentials},
		{"slow down", "SlowDown: Please reduce your request rate", provider.ErrThrottled},
		{"429", "operation error: https response error StatusCode: 429", provider.ErrThrottled},
		{"503", "operation error: https response error StatusCode: 503", provider.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.wrapError("GetObject", "key", errors.New(tt.errMsg)), tt.want)
		})
	}
}

func TestCleanETag(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", cleanETag(`"d41d8cd98f00b204e9800998ecf8427e"`))
	assert.Equal(t, "abc", cleanETag("abc"))
	assert.Equal(t, "", cleanETag(`""`))
}

func TestClampMaxKeys(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"zero uses default", 0, DefaultMaxKeys},
		{"negative uses default", -1, DefaultMaxKeys},
		{"within limit", 500, 500},
		{"over limit", 2000, MaxAllowedKeys},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, clampMaxKeys(tt.input, DefaultMaxKeys))
		})
	}
}

func TestResolveRegion(t *testing.T) {
	tests := []struct {
		name      string
		endpoint  string
		sdkRegion string
		expected  string
	}{
		{"SDK resolved region", "", "eu-west-1", "eu-west-1"},
		{"AWS falls back to us-east-1", "", "", DefaultAWSRegion},
		{"S3-compatible gets no default", "http://localhost:9000", "", ""},
		{"S3-compatible keeps SDK region", "http://localhost:9000", "us-east-2", "us-east-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resolveRegion(tt.endpoint, tt.sdkRegion))
		})
	}
}
