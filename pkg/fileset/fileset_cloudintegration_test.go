//go:build cloudintegration

package fileset_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/contentctl/pkg/fileset"
	"github.com/3leaps/contentctl/pkg/provider"
	"github.com/3leaps/contentctl/pkg/source"
	"github.com/3leaps/contentctl/pkg/source/s3"
	"github.com/3leaps/contentctl/test/cloudtest"
)

func motoBuckets(t *testing.T) *source.Buckets {
	t.Helper()
	b := source.NewBuckets(func(ctx context.Context, bucket string) (provider.Provider, error) {
		src, err := s3.New(ctx, s3.Config{
			Bucket:          bucket,
			Region:          cloudtest.Region,
			Endpoint:        cloudtest.Endpoint,
			AccessKeyID:     cloudtest.AccessKeyID,
			SecretAccessKey: cloudtest.SecretAccessKey,
			ForcePathStyle:  true,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	})
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestResolveAndOpen_Moto(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()

	bucket := cloudtest.CreateBucket(t, ctx)
	cloudtest.PutObjects(t, ctx, bucket, map[string]string{
		"release/b.rpm":         "bravo",
		"release/a.rpm":         "alpha",
		"release/.staging.rpm":  "hidden",
		"release/notes.txt":     "notes",
		"release/debug/d.rpm":   "delta",
		"release/[1]/brack.rpm": "bracket",
	})

	buckets := motoBuckets(t)
	r := fileset.NewResolver(buckets, nil)
	base := "s3://" + bucket + "/"

	tests := []struct {
		name string
		arg  string
		want []string
	}{
		{name: "prefix lists direct children", arg: base + "release/", want: []string{
			base + "release/a.rpm", base + "release/b.rpm", base + "release/notes.txt",
		}},
		{name: "pattern", arg: base + "release/*.rpm", want: []string{
			base + "release/a.rpm", base + "release/b.rpm",
		}},
		{name: "recursive pattern escapes metacharacters", arg: base + "release/**/brack.rpm", want: []string{
			base + `release/\[1\]/brack.rpm`,
		}},
		{name: "exact key", arg: base + "release/notes.txt", want: []string{base + "release/notes.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("missing key is no input", func(t *testing.T) {
		_, err := r.Resolve(ctx, base+"release/zzz.rpm")
		assert.True(t, fileset.IsNoInput(err))
	})

	t.Run("resolved refs open through the router", func(t *testing.T) {
		refs, err := r.Resolve(ctx, base+"release/**/brack.rpm")
		require.NoError(t, err)

		rc, size, err := source.NewRouter(buckets).Open(ctx, refs[0])
		require.NoError(t, err)
		defer func() { _ = rc.Close() }()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "bracket", string(data))
		assert.Equal(t, int64(7), size)
	})
}
