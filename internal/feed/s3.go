package feed

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used by this package.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads feeds from a bucket prefix. Only objects directly under the
// prefix are listed.
type S3Source struct {
	api    S3API
	bucket string
	prefix string
}

// NewS3Source creates an S3Source from an AWS config.
func NewS3Source(cfg aws.Config, bucket, prefix string) *S3Source {
	return NewS3SourceFromAPI(s3.NewFromConfig(cfg), bucket, prefix)
}

// NewS3SourceFromAPI creates an S3Source from an explicit API implementation (for testing).
func NewS3SourceFromAPI(api S3API, bucket, prefix string) *S3Source {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Source{api: api, bucket: bucket, prefix: prefix}
}

func (s *S3Source) ListFiles(ctx context.Context) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix),
		Delimiter: aws.String("/"),
	})
	var names []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("feed: s3 list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == s.prefix {
				continue
			}
			names = append(names, path.Base(key))
		}
	}
	return csvOnly(names), nil
}

func (s *S3Source) Fetch(ctx context.Context, name string) (Table, error) {
	key := s.prefix + name
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Table{}, fmt.Errorf("feed: s3 get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Table{}, fmt.Errorf("feed: s3 read s3://%s/%s: %w", s.bucket, key, err)
	}
	return Parse(name, data)
}
