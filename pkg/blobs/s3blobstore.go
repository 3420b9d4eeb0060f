package blobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

// S3Client is the subset of the S3 API used by S3Blobstore; *s3.Client satisfies it.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Blobstore keeps blobs in an S3 (or S3-compatible) bucket, keyed by hash.
type S3Blobstore struct {
	Client S3Client
	Bucket string
	Prefix string
}

var _ Blobstore = (*S3Blobstore)(nil)

// NewS3Blobstore builds a client from the environment: AWS_REGION (default
// us-east-1), AWS_ENDPOINT_URL for S3-compatible stores and the static
// credentials AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN.
// Without credentials requests are anonymous.
func NewS3Blobstore(ctx context.Context, bucket, prefix string) (*S3Blobstore, error) {
	log := klog.FromContext(ctx)

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:      region,
		Credentials: aws.AnonymousCredentials{},
	}
	if endpoint := os.Getenv("AWS_ENDPOINT_URL"); endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	if accessKey := os.Getenv("AWS_ACCESS_KEY_ID"); accessKey != "" {
		creds := aws.Credentials{
			AccessKeyID:     accessKey,
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}
		if creds.SecretAccessKey == "" {
			return nil, fmt.Errorf("AWS_ACCESS_KEY_ID is set but AWS_SECRET_ACCESS_KEY is not")
		}
		opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		})
	}

	log.V(2).Info("creating S3 client", "region", region, "bucket", bucket, "endpoint", aws.ToString(opts.BaseEndpoint))
	return &S3Blobstore{Client: s3.New(opts), Bucket: bucket, Prefix: prefix}, nil
}

func (j *S3Blobstore) url(key string) string {
	return "s3://" + j.Bucket + "/" + key
}

func (j *S3Blobstore) Upload(ctx context.Context, sourcePath string, info BlobInfo) error {
	log := klog.FromContext(ctx)

	key := objectKey(j.Prefix, info)
	s3URL := j.url(key)

	_, err := j.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(j.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		log.Info("object already exists in S3", "url", s3URL)
		return nil
	}
	if !isS3NotFound(err) {
		return fmt.Errorf("checking object %q: %w", s3URL, err)
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer src.Close()
	stat, err := src.Stat()
	if err != nil {
		return fmt.Errorf("getting source file info: %w", err)
	}

	log.Info("uploading blob to S3", "source", sourcePath, "destination", s3URL)

	startedAt := time.Now()
	if _, err := j.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(j.Bucket),
		Key:           aws.String(key),
		Body:          src,
		ContentLength: aws.Int64(stat.Size()),
	}); err != nil {
		return fmt.Errorf("uploading to S3 %q: %w", s3URL, err)
	}

	log.Info("uploaded blob to S3", "url", s3URL, "size", humanize.Bytes(uint64(stat.Size())), "duration", time.Since(startedAt))
	return nil
}

func (j *S3Blobstore) Download(ctx context.Context, info BlobInfo, destinationPath string) error {
	log := klog.FromContext(ctx)

	key := objectKey(j.Prefix, info)
	s3URL := j.url(key)

	log.Info("downloading blob from S3", "source", s3URL, "destination", destinationPath)

	startedAt := time.Now()
	out, err := j.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(j.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return fmt.Errorf("blob %q not found in S3: %w", s3URL, os.ErrNotExist)
		}
		return fmt.Errorf("opening object from S3 %q: %w", s3URL, err)
	}
	defer out.Body.Close()

	n, err := writeToFile(ctx, out.Body, destinationPath)
	if err != nil {
		return fmt.Errorf("downloading from S3: %w", err)
	}

	log.Info("downloaded blob from S3", "source", s3URL, "destination", destinationPath, "size", humanize.Bytes(uint64(n)), "duration", time.Since(startedAt))
	return nil
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
