package blobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"k8s.io/klog/v2"
)

// Fetcher downloads blobs, retrying transient failures.
type Fetcher struct {
	// Reader is the interface to fetch blobs
	Reader BlobReader

	// MaxDownloadAttempts is the number of times to attempt a download before failing
	MaxDownloadAttempts int

	// RetryDelay is the pause between attempts
	RetryDelay time.Duration
}

func NewFetcher(reader BlobReader) *Fetcher {
	return &Fetcher{
		Reader:              reader,
		MaxDownloadAttempts: 5,
		RetryDelay:          5 * time.Second,
	}
}

// Fetch downloads info to destPath. Missing blobs are not retried.
func (l *Fetcher) Fetch(ctx context.Context, info BlobInfo, destPath string) error {
	log := klog.FromContext(ctx)

	attempt := 0
	for {
		attempt++

		err := l.Reader.Download(ctx, info, destPath)
		if err == nil {
			return nil
		}

		if errors.Is(err, os.ErrNotExist) || attempt >= l.MaxDownloadAttempts {
			return err
		}

		log.Error(err, "downloading blob, will retry", "info", info, "attempt", attempt)
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting to retry download: %w", ctx.Err())
		case <-time.After(l.RetryDelay):
		}
	}
}

// FetchIfMissing downloads info to destPath unless a file already exists there.
func (l *Fetcher) FetchIfMissing(ctx context.Context, info BlobInfo, destPath string) (bool, error) {
	if _, err := os.Stat(destPath); err == nil {
		klog.FromContext(ctx).V(2).Info("blob already present", "info", info, "path", destPath)
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("checking %q: %w", destPath, err)
	}
	if err := l.Fetch(ctx, info, destPath); err != nil {
		return false, err
	}
	return true, nil
}
