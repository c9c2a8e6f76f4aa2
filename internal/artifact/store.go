// Package artifact resolves and serves the files produced by finished jobs.
//
// Files are written by the downloader into a local directory under names
// prefixed with the job id. The directory is opened as a gocloud bucket so
// lookup is a prefix listing and retrieval is a blob reader.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

var ErrArtifactNotFound = errors.New("artifact not found")

// partial downloads and yt-dlp bookkeeping files never count as a result
var skippedSuffixes = []string{".part", ".ytdl", ".temp", ".tmp"}

type Store struct {
	dir    string
	bucket *blob.Bucket
}

// Open prepares dir and opens it as a bucket.
func Open(ctx context.Context, dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve download dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir %s: %w", abs, err)
	}
	bucket, err := blob.OpenBucket(ctx, "file://"+filepath.ToSlash(abs))
	if err != nil {
		return nil, fmt.Errorf("open download dir %s: %w", abs, err)
	}
	return &Store{dir: abs, bucket: bucket}, nil
}

func (s *Store) Close() error {
	return s.bucket.Close()
}

func (s *Store) Dir() string {
	return s.dir
}

// Template returns the output path template handed to the downloader for job id.
// The extension is left to the downloader.
func (s *Store) Template(id string) string {
	return filepath.Join(s.dir, id+"-%(title).80B.%(ext)s")
}

// Locate returns the path of the first file whose name starts with id.
func (s *Store) Locate(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", ErrArtifactNotFound
	}
	iter := s.bucket.List(&blob.ListOptions{Prefix: id})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: no file prefixed %s in %s", ErrArtifactNotFound, id, s.dir)
		}
		if err != nil {
			return "", fmt.Errorf("list %s: %w", s.dir, err)
		}
		if obj.IsDir || partial(obj.Key) {
			continue
		}
		return filepath.Join(s.dir, filepath.FromSlash(obj.Key)), nil
	}
}

func partial(key string) bool {
	for _, suf := range skippedSuffixes {
		if strings.HasSuffix(key, suf) {
			return true
		}
	}
	return false
}

// Object is an opened artifact. Callers must Close it.
type Object struct {
	io.ReadCloser
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// OpenArtifact opens the artifact stored at path, which must live in the store's directory.
func (s *Store) OpenArtifact(ctx context.Context, path string) (*Object, error) {
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("%w: %s is outside %s", ErrArtifactNotFound, path, s.dir)
	}
	key := filepath.ToSlash(rel)

	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, key)
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return &Object{
		ReadCloser:  r,
		Name:        key,
		Size:        r.Size(),
		ContentType: r.ContentType(),
		ModTime:     r.ModTime(),
	}, nil
}

// DisplayName strips the "<id>-" prefix from an artifact file name.
func DisplayName(id, path string) string {
	name := filepath.Base(path)
	if trimmed := strings.TrimPrefix(name, id+"-"); trimmed != "" && trimmed != name {
		return trimmed
	}
	return name
}
