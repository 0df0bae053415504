package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yungbote/medicore-backend/internal/platform/logger"
)

var ErrNotFound = errors.New("object not found")

// localGateway stores objects under root/bucket/key on the local filesystem.
type localGateway struct {
	log      *logger.Logger
	bucket   string
	basePath string
}

func NewLocalGateway(log *logger.Logger, bucket, root string) (Gateway, error) {
	if strings.TrimSpace(root) == "" {
		return nil, &ConfigError{Code: ConfigErrorMissingLocalRoot, Mode: string(ModeLocal)}
	}
	abs, err := filepath.Abs(filepath.Join(root, bucket))
	if err != nil {
		return nil, fmt.Errorf("resolve local storage path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create local storage path: %w", err)
	}
	return &localGateway{log: log, bucket: bucket, basePath: abs}, nil
}

func (g *localGateway) Bucket() string { return g.bucket }

func (g *localGateway) fullPath(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	full := filepath.Join(g.basePath, filepath.FromSlash(k))
	if !strings.HasPrefix(full, g.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return full, nil
}

func (g *localGateway) Upload(ctx context.Context, localPath, key string) bool {
	f, err := os.Open(localPath)
	if err != nil {
		g.log.Error("local upload: open source failed", "path", localPath, "error", err)
		return false
	}
	defer f.Close()
	if err := g.Put(ctx, key, f, ""); err != nil {
		g.log.Error("local upload failed", "key", key, "error", err)
		return false
	}
	return true
}

func (g *localGateway) Put(ctx context.Context, key string, r io.Reader, _ string) error {
	full, err := g.fullPath(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeFileAtomic(full, r)
}

func (g *localGateway) Presign(_ context.Context, key string, _ time.Duration) (string, bool) {
	full, err := g.fullPath(key)
	if err != nil {
		return "", false
	}
	if _, err := os.Stat(full); err != nil {
		return "", false
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(full)}
	return u.String(), true
}

func (g *localGateway) Download(ctx context.Context, key, localPath string) error {
	full, err := g.fullPath(key)
	if err != nil {
		return err
	}
	src, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("open object: %w", err)
	}
	defer src.Close()
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeFileAtomic(localPath, src)
}

func (g *localGateway) Delete(_ context.Context, key string) error {
	full, err := g.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// writeFileAtomic writes r to a sibling temp file and renames it into place.
func writeFileAtomic(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
