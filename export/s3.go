package export

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Sink uploads payloads to a bucket under an optional key prefix.
type S3Sink struct {
	uploader uploader
	bucket   string
	prefix   string
}

// S3Location is a parsed sink URL.
type S3Location struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// ParseS3URL reads s3://bucket/prefix?region=us-east-1&endpoint=http://localhost:9000.
// An endpoint switches to path-style addressing for S3-compatible stores.
func ParseS3URL(raw string) (S3Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return S3Location{}, fmt.Errorf("invalid s3 url: %w", err)
	}
	if u.Scheme != "s3" {
		return S3Location{}, fmt.Errorf("invalid scheme: expected s3, got %s", u.Scheme)
	}
	if u.Host == "" {
		return S3Location{}, fmt.Errorf("s3 url %q has no bucket", raw)
	}
	loc := S3Location{
		Bucket:   u.Host,
		Prefix:   strings.TrimPrefix(u.Path, "/"),
		Region:   u.Query().Get("region"),
		Endpoint: u.Query().Get("endpoint"),
	}
	if loc.Prefix != "" && !strings.HasSuffix(loc.Prefix, "/") {
		loc.Prefix += "/"
	}
	if loc.Region == "" {
		loc.Region = "us-east-1"
	}
	return loc, nil
}

// NewS3Sink loads the default AWS credential chain and checks the bucket
// is reachable.
func NewS3Sink(ctx context.Context, rawURL string) (*S3Sink, error) {
	loc, err := ParseS3URL(rawURL)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(loc.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var options []func(*s3.Options)
	if loc.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(loc.Endpoint)
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(cfg, options...)

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(loc.Bucket)}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %s: %w", loc.Bucket, err)
	}
	log.Debug().Str("bucket", loc.Bucket).Str("prefix", loc.Prefix).Msg("s3 sink ready")
	return newS3Sink(manager.NewUploader(client), loc), nil
}

func newS3Sink(up uploader, loc S3Location) *S3Sink {
	return &S3Sink{uploader: up, bucket: loc.Bucket, prefix: loc.Prefix}
}

func (s *S3Sink) Put(ctx context.Context, p *Payload) (string, error) {
	key := s.prefix + SafeName(p.Filename)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        p.Reader(),
		ContentType: aws.String(p.MIMEType),
		Metadata: map[string]string{
			"dbharbor-format":    string(p.Format),
			"dbharbor-rows":      strconv.Itoa(p.Rows),
			"dbharbor-timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	loc := "s3://" + s.bucket + "/" + key
	log.Debug().Str("location", loc).Int64("bytes", p.Size).Msg("export uploaded")
	return loc, nil
}
