package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/USSTM/microservice/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Reporter archives error reports as json objects in a bucket.
type S3Reporter struct {
	client *s3.Client
	bucket string
	prefix string
	now    func() time.Time
}

type storedReport struct {
	Title  string          `json:"title"`
	Report json.RawMessage `json:"report"`
}

func NewS3Reporter(awsCfg aws.Config, cfg config.AWSConfig) (*S3Reporter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 reporter needs a bucket")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true // required for localstack
		}
	})

	return &S3Reporter{
		client: client,
		bucket: cfg.Bucket,
		prefix: "error-reports",
		now:    time.Now,
	}, nil
}

func (s *S3Reporter) Report(ctx context.Context, title, body string) error {
	raw := json.RawMessage(body)
	if !json.Valid(raw) {
		quoted, _ := json.Marshal(body)
		raw = quoted
	}

	data, err := json.MarshalIndent(storedReport{Title: title, Report: raw}, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	key := fmt.Sprintf("%s/%s/%s.json", s.prefix, s.now().UTC().Format("2006/01/02"), uuid.New().String())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload report to S3: %w", err)
	}
	return nil
}

// CreateBucket is only used against localstack, buckets are not managed by the app in prod.
func (s *S3Reporter) CreateBucket(ctx context.Context) error {
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// ListReports returns the keys of archived reports.
func (s *S3Reporter) ListReports(ctx context.Context) ([]string, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + "/"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	return keys, nil
}

func (s *S3Reporter) GetReport(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get report from S3: %w", err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}
