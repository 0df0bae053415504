package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/medicore-backend/internal/platform/logger"
)

type gcsGateway struct {
	log          *logger.Logger
	bucket       string
	client       *storage.Client
	emulatorHost string
}

func NewGCSGateway(ctx context.Context, log *logger.Logger, cfg Config) (Gateway, error) {
	client, err := newStorageClientForMode(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	g := &gcsGateway{
		log:    log,
		bucket: cfg.Bucket,
		client: client,
	}
	if cfg.IsEmulatorMode() {
		g.emulatorHost = strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	}
	log.Info("GCS object store ready", "emulator_host", g.emulatorHost, "mode_source", cfg.ModeSource())
	return g, nil
}

func newStorageClientForMode(ctx context.Context, cfg Config) (*storage.Client, error) {
	switch cfg.Mode {
	case ModeGCS:
		opts := clientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ConfigError{Code: ConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
}

func clientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func (g *gcsGateway) Bucket() string { return g.bucket }

func (g *gcsGateway) Upload(ctx context.Context, localPath, key string) bool {
	f, err := os.Open(localPath)
	if err != nil {
		g.log.Error("GCS upload: open local file failed", "path", localPath, "error", err)
		return false
	}
	defer f.Close()
	if err := g.Put(ctx, key, f, ""); err != nil {
		g.log.Error("GCS upload failed", "key", key, "error", err)
		return false
	}
	return true
}

func (g *gcsGateway) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if w.ContentType == "" {
		w.ContentType = contentTypeForKey(key)
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (g *gcsGateway) Presign(ctx context.Context, key string, ttl time.Duration) (string, bool) {
	if g.emulatorHost != "" {
		// The emulator does not verify signatures; hand out the media URL.
		return fmt.Sprintf("%s/download/storage/v1/b/%s/o/%s?alt=media",
			g.emulatorHost, url.PathEscape(g.bucket), url.PathEscape(key)), true
	}
	u, err := g.client.Bucket(g.bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(ttl),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		g.log.Warn("GCS presign failed", "key", key, "error", err)
		return "", false
	}
	return u, true
}

func (g *gcsGateway) Download(ctx context.Context, key, localPath string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to open GCS reader: %w", err)
	}
	defer r.Close()
	return writeFileAtomic(localPath, r)
}

func (g *gcsGateway) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := g.client.Bucket(g.bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, g.bucket, err)
	}
	return nil
}
