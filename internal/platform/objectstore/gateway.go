package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/medicore-backend/internal/platform/logger"
)

// Gateway is the durable object store behind uploads and previews.
//
// Upload never returns an error: failures are logged and reported as false.
// Presign returns ("", false) when a URL cannot be produced.
type Gateway interface {
	Bucket() string
	Upload(ctx context.Context, localPath, key string) bool
	Presign(ctx context.Context, key string, ttl time.Duration) (string, bool)
	Download(ctx context.Context, key, localPath string) error
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (Gateway, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	log = log.With("service", "ObjectStore", "mode", string(cfg.Mode), "bucket", cfg.Bucket)
	switch cfg.Mode {
	case ModeS3:
		return NewS3Gateway(ctx, log, cfg)
	case ModeGCS, ModeGCSEmulator:
		return NewGCSGateway(ctx, log, cfg)
	case ModeLocal:
		return NewLocalGateway(log, cfg.Bucket, cfg.LocalRoot)
	default:
		return nil, &ConfigError{Code: ConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
}

// ErrInvalidKeySegment is returned when a key segment would leave its prefix.
var ErrInvalidKeySegment = errors.New("invalid object key segment")

// StudyObjectKey lays out studies/{study_instance_uid}/{filename}.
func StudyObjectKey(studyInstanceUID, filename string) (string, error) {
	if err := checkSegments(studyInstanceUID, filename); err != nil {
		return "", err
	}
	return path.Join("studies", studyInstanceUID, filename), nil
}

func PreviewObjectKey(studyInstanceUID string, studyID uuid.UUID) (string, error) {
	if err := checkSegments(studyInstanceUID); err != nil {
		return "", err
	}
	return path.Join("studies", studyInstanceUID, "previews", studyID.String()+".png"), nil
}

func checkSegments(segs ...string) error {
	for _, s := range segs {
		if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
			return fmt.Errorf("%w: %q", ErrInvalidKeySegment, s)
		}
	}
	return nil
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".dcm"), strings.HasSuffix(s, ".dicom"):
		return "application/dicom"
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func cleanKey(key string) (string, error) {
	k := strings.TrimLeft(strings.TrimSpace(key), "/")
	if k == "" {
		return "", fmt.Errorf("object key required")
	}
	if cleaned := path.Clean(k); cleaned != k || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return k, nil
}
