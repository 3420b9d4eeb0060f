package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/examples/AI/npubridge/pkg/blobs"
	"k8s.io/klog/v2"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := klog.FromContext(ctx)

	listen := ":8080"
	cacheDir := os.Getenv("CACHE_DIR")
	if cacheDir == "" {
		// We expect CACHE_DIR to be set when running on kubernetes, but default sensibly for local dev
		cacheDir = "~/.cache/blobserver/blobs"
	}
	cacheBucket := os.Getenv("CACHE_BUCKET")
	flag.StringVar(&listen, "listen", listen, "listen address")
	flag.StringVar(&cacheDir, "cache-dir", cacheDir, "cache directory")
	flag.StringVar(&cacheBucket, "cache-bucket", cacheBucket, "bucket backing the cache (gs://<bucketName> or s3://<bucketName>)")
	klog.InitFlags(nil)
	flag.Parse()

	if strings.HasPrefix(cacheDir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		cacheDir = filepath.Join(homeDir, strings.TrimPrefix(cacheDir, "~/"))
	}

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return fmt.Errorf("creating cache directory %q: %w", cacheDir, err)
	}

	if cacheBucket == "" {
		return fmt.Errorf("must specify CACHE_BUCKET env var")
	}
	blobstore, err := blobs.NewBlobstore(ctx, cacheBucket)
	if err != nil {
		return fmt.Errorf("CACHE_BUCKET: %w", err)
	}
	log.Info("using blobstore cache", "bucket", cacheBucket)

	s := &httpServer{
		blobCache: newBlobCache(cacheDir, blobstore),
	}

	log.Info("serving", "listen", listen)
	if err := http.ListenAndServe(listen, s); err != nil {
		return fmt.Errorf("serving on %q: %w", listen, err)
	}

	return nil
}

// validHash matches blob names: no path separators, no leading dot.
var validHash = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]*$`)

type httpServer struct {
	blobCache *blobCache
}

func (s *httpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tokens := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(tokens) == 1 {
		hash := tokens[0]
		if !validHash.MatchString(hash) {
			http.Error(w, "invalid blob name", http.StatusBadRequest)
			return
		}
		switch r.Method {
		case "GET", "HEAD":
			s.serveGETBlob(w, r, hash)
			return
		case "PUT":
			s.servePUTBlob(w, r, hash)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	http.Error(w, "not found", http.StatusNotFound)
}

func (s *httpServer) serveGETBlob(w http.ResponseWriter, r *http.Request, hash string) {
	ctx := r.Context()

	log := klog.FromContext(ctx)

	f, err := s.blobCache.GetBlob(ctx, hash)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		log.Error(err, "error getting blob")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	p := f.Name()

	log.Info("serving blob", "path", p)
	http.ServeFile(w, r, p)
}

func (s *httpServer) servePUTBlob(w http.ResponseWriter, r *http.Request, hash string) {
	ctx := r.Context()

	log := klog.FromContext(ctx)

	n, err := s.blobCache.PutBlob(ctx, hash, r.Body)
	if err != nil {
		if errors.Is(err, errBlobExists) {
			http.Error(w, "blob already exists", http.StatusConflict)
			return
		}
		if errors.Is(err, errDigestMismatch) {
			http.Error(w, "blob content does not match its name", http.StatusBadRequest)
			return
		}
		log.Error(err, "error storing blob", "hash", hash)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	log.Info("stored blob", "hash", hash, "size", humanize.Bytes(uint64(n)))
	w.WriteHeader(http.StatusCreated)
}

// blobCache keeps blobs on local disk, backed by a blobstore.
type blobCache struct {
	BaseDir   string
	blobstore blobs.Blobstore

	// mu guards filling, which serializes fills of the same blob.
	mu      sync.Mutex
	filling map[string]*blobLock
}

type blobLock struct {
	sync.Mutex
	// refs counts the callers holding or waiting for the lock.
	refs int
}

func newBlobCache(baseDir string, blobstore blobs.Blobstore) *blobCache {
	return &blobCache{
		BaseDir:   baseDir,
		blobstore: blobstore,
		filling:   make(map[string]*blobLock),
	}
}

// lockBlob locks hash and returns the unlock function. The lock is dropped
// from the map once nobody holds or waits for it.
func (c *blobCache) lockBlob(hash string) func() {
	c.mu.Lock()
	l := c.filling[hash]
	if l == nil {
		l = &blobLock{}
		c.filling[hash] = l
	}
	l.refs++
	c.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.filling, hash)
		}
		c.mu.Unlock()
	}
}

func (c *blobCache) GetBlob(ctx context.Context, hash string) (*os.File, error) {
	log := klog.FromContext(ctx)

	localPath := filepath.Join(c.BaseDir, hash)
	f, err := os.Open(localPath)
	if err == nil {
		return f, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("opening blob %q: %w", hash, err)
	}

	unlock := c.lockBlob(hash)
	defer unlock()

	// Another request may have filled the blob while we waited.
	if f, err := os.Open(localPath); err == nil {
		return f, nil
	}

	log.Info("blob not in local cache, downloading", "hash", hash)
	if err := c.blobstore.Download(ctx, blobs.BlobInfo{Hash: hash}, localPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, status.Errorf(codes.NotFound, "blob %q not found", hash)
		}
		return nil, fmt.Errorf("downloading blob %q: %w", hash, err)
	}

	f, err = os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("opening blob %q: %w", hash, err)
	}
	return f, nil
}

var (
	errBlobExists     = errors.New("blob already exists")
	errDigestMismatch = errors.New("blob digest does not match")
)

// sha256Name matches blob names that are a hex sha256 digest of the content.
var sha256Name = regexp.MustCompile(`^(sha256-)?([0-9a-f]{64})$`)

// PutBlob stores body as hash, locally and in the blobstore. Blobs are
// immutable: a hash already held locally or in the blobstore is rejected
// with errBlobExists. Names that are sha256 digests must match the content.
func (c *blobCache) PutBlob(ctx context.Context, hash string, body io.Reader) (int64, error) {
	log := klog.FromContext(ctx)

	unlock := c.lockBlob(hash)
	defer unlock()

	localPath := filepath.Join(c.BaseDir, hash)
	if _, err := os.Stat(localPath); err == nil {
		return 0, fmt.Errorf("blob %q: %w", hash, errBlobExists)
	} else if !os.IsNotExist(err) {
		return 0, fmt.Errorf("checking blob %q: %w", hash, err)
	}

	// Fill the cache from the blobstore if it already has the blob, so the
	// local copy always agrees with the bucket.
	if err := c.blobstore.Download(ctx, blobs.BlobInfo{Hash: hash}, localPath); err == nil {
		log.Info("blob already in blobstore, rejecting upload", "hash", hash)
		return 0, fmt.Errorf("blob %q: %w", hash, errBlobExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("checking blobstore for %q: %w", hash, err)
	}

	tempFile, err := os.CreateTemp(c.BaseDir, "upload")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tempFile.Name())

	digest := sha256.New()
	n, err := tempFile.ReadFrom(io.TeeReader(body, digest))
	if closeErr := tempFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("receiving blob: %w", err)
	}

	if m := sha256Name.FindStringSubmatch(hash); m != nil {
		if got := hex.EncodeToString(digest.Sum(nil)); got != m[2] {
			return n, fmt.Errorf("blob %q has sha256 %s: %w", hash, got, errDigestMismatch)
		}
	}

	if err := c.blobstore.Upload(ctx, tempFile.Name(), blobs.BlobInfo{Hash: hash}); err != nil {
		return n, fmt.Errorf("uploading blob: %w", err)
	}
	if err := os.Rename(tempFile.Name(), localPath); err != nil {
		return n, fmt.Errorf("renaming temp file: %w", err)
	}
	return n, nil
}
