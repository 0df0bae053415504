package objectstore

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

type Mode string

const (
	ModeS3          Mode = "s3"
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
	ModeLocal       Mode = "local"
)

func IsSupportedMode(mode Mode) bool {
	switch mode {
	case ModeS3, ModeGCS, ModeGCSEmulator, ModeLocal:
		return true
	default:
		return false
	}
}

type Config struct {
	Mode   Mode
	Bucket string

	// s3
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string

	// gcs / gcs_emulator
	EmulatorHost string

	// local
	LocalRoot string

	// CompatibilityFallback is set when the mode was inferred from STORAGE_EMULATOR_HOST.
	CompatibilityFallback bool
}

func (cfg Config) IsEmulatorMode() bool {
	return cfg.Mode == ModeGCSEmulator
}

func (cfg Config) ModeSource() string {
	if cfg.CompatibilityFallback {
		return "compatibility_fallback"
	}
	return "explicit_or_default"
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidMode         ConfigErrorCode = "invalid_mode"
	ConfigErrorMissingBucket       ConfigErrorCode = "missing_bucket"
	ConfigErrorMissingEmulatorHost ConfigErrorCode = "missing_emulator_host"
	ConfigErrorInvalidEmulatorHost ConfigErrorCode = "invalid_emulator_host"
	ConfigErrorInvalidEndpoint     ConfigErrorCode = "invalid_endpoint"
	ConfigErrorMissingLocalRoot    ConfigErrorCode = "missing_local_root"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Mode  string
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid object storage config"
	}
	switch e.Code {
	case ConfigErrorInvalidMode:
		return fmt.Sprintf(
			"invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q, %q, %q)",
			e.Mode, ModeS3, ModeGCS, ModeGCSEmulator, ModeLocal,
		)
	case ConfigErrorMissingBucket:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires a bucket name", e.Mode)
	case ConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST to be set", ModeGCSEmulator)
	case ConfigErrorInvalidEmulatorHost:
		return fmt.Sprintf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", e.Value)
	case ConfigErrorInvalidEndpoint:
		return fmt.Sprintf("invalid AWS_ENDPOINT_URL=%q; expected absolute URL like http://localstack:4566", e.Value)
	case ConfigErrorMissingLocalRoot:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires LOCAL_STORAGE_PATH to be set", ModeLocal)
	default:
		return "invalid object storage config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveConfigFromEnv reads OBJECT_STORAGE_MODE and the per-mode settings.
// With no explicit mode, STORAGE_EMULATOR_HOST selects gcs_emulator; otherwise s3.
func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		Region:          strings.TrimSpace(os.Getenv("AWS_REGION")),
		AccessKeyID:     strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY")),
		Endpoint:        strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL")),
		EmulatorHost:    strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")),
		LocalRoot:       strings.TrimSpace(os.Getenv("LOCAL_STORAGE_PATH")),
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	rawMode := strings.TrimSpace(os.Getenv("OBJECT_STORAGE_MODE"))
	switch mode := Mode(strings.ToLower(rawMode)); mode {
	case "":
		if cfg.EmulatorHost != "" {
			cfg.Mode = ModeGCSEmulator
			cfg.CompatibilityFallback = true
		} else {
			cfg.Mode = ModeS3
		}
	case ModeS3, ModeGCS, ModeGCSEmulator, ModeLocal:
		cfg.Mode = mode
	default:
		return cfg, &ConfigError{Code: ConfigErrorInvalidMode, Mode: rawMode}
	}

	switch cfg.Mode {
	case ModeS3:
		cfg.Bucket = strings.TrimSpace(os.Getenv("AWS_S3_BUCKET_NAME"))
	case ModeGCS, ModeGCSEmulator:
		cfg.Bucket = strings.TrimSpace(os.Getenv("GCS_BUCKET_NAME"))
	case ModeLocal:
		cfg.Bucket = strings.TrimSpace(os.Getenv("LOCAL_STORAGE_BUCKET"))
		if cfg.Bucket == "" {
			cfg.Bucket = "local"
		}
	}

	if err := ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if !IsSupportedMode(cfg.Mode) {
		return &ConfigError{Code: ConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return &ConfigError{Code: ConfigErrorMissingBucket, Mode: string(cfg.Mode)}
	}
	switch cfg.Mode {
	case ModeS3:
		if cfg.Endpoint != "" && !isAbsoluteURL(cfg.Endpoint) {
			return &ConfigError{Code: ConfigErrorInvalidEndpoint, Mode: string(cfg.Mode), Value: cfg.Endpoint}
		}
	case ModeGCSEmulator:
		if cfg.EmulatorHost == "" {
			return &ConfigError{Code: ConfigErrorMissingEmulatorHost, Mode: string(cfg.Mode)}
		}
		if !isAbsoluteURL(cfg.EmulatorHost) {
			return &ConfigError{Code: ConfigErrorInvalidEmulatorHost, Mode: string(cfg.Mode), Value: cfg.EmulatorHost}
		}
	case ModeLocal:
		if strings.TrimSpace(cfg.LocalRoot) == "" {
			return &ConfigError{Code: ConfigErrorMissingLocalRoot, Mode: string(cfg.Mode)}
		}
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && strings.TrimSpace(u.Scheme) != "" && strings.TrimSpace(u.Host) != ""
}
