package blobs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

// ModelServer reads blobs from a model-store over HTTP.
type ModelServer struct {
	// BlobserverURL is the base URL to the blobserver, typically http://blobserver
	BlobserverURL *url.URL

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Progress, if set, returns a writer that is fed every downloaded byte.
	// total is -1 when the server does not announce a length.
	Progress func(total int64, description string) io.Writer
}

var _ BlobReader = &ModelServer{}

func (l *ModelServer) Download(ctx context.Context, info BlobInfo, destPath string) error {
	u := l.BlobserverURL.JoinPath(info.Hash)
	return l.downloadToFile(ctx, u.String(), destPath)
}

func (l *ModelServer) downloadToFile(ctx context.Context, url string, destPath string) error {
	log := klog.FromContext(ctx)

	log.Info("downloading from url", "url", url)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	startedAt := time.Now()

	httpClient := l.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		if resp.StatusCode == 404 {
			return fmt.Errorf("blob not found at %q: %w", url, os.ErrNotExist)
		}
		return fmt.Errorf("unexpected status downloading from %q: %v", url, resp.Status)
	}

	var body io.Reader = resp.Body
	if l.Progress != nil {
		body = io.TeeReader(resp.Body, l.Progress(resp.ContentLength, "downloading"))
	}

	n, err := writeToFile(ctx, body, destPath)
	if err != nil {
		return fmt.Errorf("downloading from %q: %w", url, err)
	}

	log.Info("downloaded blob", "url", url, "size", humanize.Bytes(uint64(n)), "duration", time.Since(startedAt))

	return nil
}
