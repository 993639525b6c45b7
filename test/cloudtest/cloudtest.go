// Package cloudtest runs object storage input tests against a local
// moto server instead of AWS.
//
// Tests using this package carry the cloudintegration build tag:
//
//	//go:build cloudintegration
//
//	func TestListInputs(t *testing.T) {
//	    cloudtest.SkipIfUnavailable(t)
//	    bucket := cloudtest.CreateBucket(t, ctx)
//	    cloudtest.PutObjects(t, ctx, bucket, map[string]string{"rpms/a.rpm": "a"})
//	}
package cloudtest

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	// DefaultEndpoint avoids port 5000, which macOS AirPlay holds.
	DefaultEndpoint = "http://localhost:5555"
	DefaultRegion   = "us-east-1"

	// moto accepts any static credentials.
	AccessKeyID     = "testing"
	SecretAccessKey = "testing"
)

var (
	// Endpoint and Region can be overridden with MOTO_ENDPOINT and MOTO_REGION.
	Endpoint = envOr("MOTO_ENDPOINT", DefaultEndpoint)
	Region   = envOr("MOTO_REGION", DefaultRegion)

	client     *s3.Client
	clientOnce sync.Once
	clientErr  error
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Available reports whether the moto server answers.
func Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, Endpoint+"/moto-api/", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// SkipIfUnavailable skips t when no moto server is running.
func SkipIfUnavailable(t *testing.T) {
	t.Helper()
	if !Available() {
		t.Skipf("moto server not available at %s", Endpoint)
	}
}

// Client returns a shared S3 client pointed at moto. It is only used to
// seed fixtures; code under test builds its own client.
func Client(t *testing.T) *s3.Client {
	t.Helper()
	clientOnce.Do(func() {
		cfg, err := config.LoadDefaultConfig(context.Background(),
			config.WithRegion(Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(AccessKeyID, SecretAccessKey, "")),
		)
		if err != nil {
			clientErr = fmt.Errorf("load config: %w", err)
			return
		}
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(Endpoint)
			o.UsePathStyle = true
		})
	})
	if clientErr != nil {
		t.Fatalf("create S3 client: %v", clientErr)
	}
	return client
}

// CreateBucket creates a uniquely named bucket that is emptied and
// removed when the test ends.
func CreateBucket(t *testing.T, ctx context.Context) string {
	t.Helper()
	c := Client(t)

	name := strings.NewReplacer("/", "-", "_", "-").Replace(strings.ToLower(t.Name()))
	if len(name) > 50 {
		name = name[:50]
	}
	name = fmt.Sprintf("%s-%d", name, time.Now().UnixNano()%100000)

	if _, err := c.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)}); err != nil {
		t.Fatalf("create bucket %s: %v", name, err)
	}
	t.Cleanup(func() { deleteBucket(t, name) })
	return name
}

func deleteBucket(t *testing.T, bucket string) {
	ctx := context.Background()
	c := Client(t)

	pages := s3.NewListObjectsV2Paginator(c, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			t.Logf("warning: list %s: %v", bucket, err)
			return
		}
		for _, obj := range page.Contents {
			if _, err := c.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: obj.Key}); err != nil {
				t.Logf("warning: delete %s: %v", aws.ToString(obj.Key), err)
			}
		}
	}
	if _, err := c.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Logf("warning: delete bucket %s: %v", bucket, err)
	}
}

// PutObjects writes key → content pairs into bucket.
func PutObjects(t *testing.T, ctx context.Context, bucket string, objects map[string]string) {
	t.Helper()
	c := Client(t)
	for key, content := range objects {
		_, err := c.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   strings.NewReader(content),
		})
		if err != nil {
			t.Fatalf("put %s/%s: %v", bucket, key, err)
		}
	}
}
