// Package audiosrc fetches recordings named by URI from blob storage.
//
// URIs are resolved through gocloud.dev/blob, so gs:// objects and local
// files (file:// URIs or plain paths) are read through the same code path:
//
//	f := audiosrc.NewFetcher()
//	data, err := f.Fetch(ctx, "gs://classroom-audio/2024/reading.wav")
package audiosrc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	"gocloud.dev/gcerrors"
)

// DefaultMaxBytes bounds the size of a fetched recording.
const DefaultMaxBytes = 64 << 20

// ErrNotFound is returned when the object named by the URI does not exist.
var ErrNotFound = errors.New("audiosrc: object not found")

// ErrTooLarge is returned when the object exceeds the fetcher's size limit.
var ErrTooLarge = errors.New("audiosrc: object exceeds size limit")

// Fetcher reads a whole recording into memory.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// BlobFetcher implements [Fetcher] on top of gocloud.dev/blob.
type BlobFetcher struct {
	maxBytes int64
}

var _ Fetcher = (*BlobFetcher)(nil)

// Option is a functional option for [BlobFetcher].
type Option func(*BlobFetcher)

// WithMaxBytes overrides [DefaultMaxBytes].
func WithMaxBytes(n int64) Option {
	return func(f *BlobFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// NewFetcher returns a [BlobFetcher].
func NewFetcher(opts ...Option) *BlobFetcher {
	f := &BlobFetcher{maxBytes: DefaultMaxBytes}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch opens the bucket that holds uri and reads the object.
func (f *BlobFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucketURL, key, err := Split(uri)
	if err != nil {
		return nil, err
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("audiosrc: open bucket %q: %w", bucketURL, err)
	}
	defer bucket.Close()

	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return nil, fmt.Errorf("audiosrc: open %q: %w", uri, err)
	}
	defer r.Close()

	if r.Size() > f.maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, uri, r.Size())
	}
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("audiosrc: read %q: %w", uri, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, uri)
	}
	return data, nil
}

// Split separates uri into a bucket URL accepted by [blob.OpenBucket] and
// the object key inside it.
//
//	gs://bucket/dir/a.wav  -> "gs://bucket", "dir/a.wav"
//	file:///tmp/a.wav      -> "file:///tmp", "a.wav"
//	./a.wav                -> "file:///<cwd>", "a.wav"
func Split(uri string) (bucketURL, key string, err error) {
	if uri == "" {
		return "", "", errors.New("audiosrc: empty URI")
	}
	if !strings.Contains(uri, "://") {
		abs, err := filepath.Abs(uri)
		if err != nil {
			return "", "", fmt.Errorf("audiosrc: resolve %q: %w", uri, err)
		}
		uri = "file://" + filepath.ToSlash(abs)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("audiosrc: parse %q: %w", uri, err)
	}

	switch u.Scheme {
	case "file":
		dir, file := path.Split(u.Path)
		if file == "" {
			return "", "", fmt.Errorf("audiosrc: %q names a directory", uri)
		}
		dir = strings.TrimSuffix(dir, "/")
		if dir == "" {
			dir = "/"
		}
		return "file://" + dir, file, nil
	default:
		if u.Host == "" {
			return "", "", fmt.Errorf("audiosrc: %q has no bucket", uri)
		}
		key = strings.TrimPrefix(u.Path, "/")
		if key == "" {
			return "", "", fmt.Errorf("audiosrc: %q has no object key", uri)
		}
		return u.Scheme + "://" + u.Host, key, nil
	}
}
