package blobs

import (
	"context"
	"fmt"
	"strings"
)

// BlobReader fetches blobs (model packages, metadata files) by hash.
type BlobReader interface {
	// If no such object exists, Download should return an error for which errors.Is(err, os.ErrNotExist) is true.
	Download(ctx context.Context, info BlobInfo, destPath string) error
}

type Blobstore interface {
	BlobReader
	// Upload uploads the file at sourcePath to the blobstore, using the given hash as the object key.
	// If an object with the same hash already exists, Upload should do nothing and return no error.
	Upload(ctx context.Context, sourcePath string, info BlobInfo) error
}

type BlobInfo struct {
	Hash string
}

// objectKey is the key of info below an optional prefix.
func objectKey(prefix string, info BlobInfo) string {
	if prefix == "" {
		return info.Hash
	}
	return strings.TrimSuffix(prefix, "/") + "/" + info.Hash
}

// NewBlobstore returns the blobstore for a bucket URL: gs://<bucket>[/prefix]
// or s3://<bucket>[/prefix].
func NewBlobstore(ctx context.Context, bucketURL string) (Blobstore, error) {
	scheme, rest, ok := strings.Cut(bucketURL, "://")
	if !ok {
		return nil, fmt.Errorf("bucket %q must be a URL (gs://<bucketName> or s3://<bucketName>)", bucketURL)
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, fmt.Errorf("bucket %q has no bucket name", bucketURL)
	}

	switch scheme {
	case "gs":
		return &GCSBlobstore{Bucket: bucket, Prefix: prefix}, nil
	case "s3":
		return NewS3Blobstore(ctx, bucket, prefix)
	default:
		return nil, fmt.Errorf("unsupported bucket scheme %q in %q", scheme, bucketURL)
	}
}
