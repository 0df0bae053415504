package temporalx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/medicore-backend/internal/platform/logger"
)

const minNamespaceRetention = 24 * time.Hour

// NewClient dials cfg.Address, retrying until cfg.DialMaxWait elapses. It
// returns (nil, nil) when no address is configured.
func NewClient(log *logger.Logger, cfg Config) (temporalsdkclient.Client, error) {
	if !cfg.Enabled() {
		log.Info("TEMPORAL_ADDRESS not set; using database job queue")
		return nil, nil
	}
	opts, err := clientOptions(log, cfg, true)
	if err != nil {
		return nil, err
	}

	var c temporalsdkclient.Client
	err = Retry(context.Background(), log, cfg, "temporal dial", func(ctx context.Context) (bool, error) {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		var dialErr error
		c, dialErr = temporalsdkclient.DialContext(dialCtx, opts)
		return true, dialErr
	})
	if err != nil {
		return nil, fmt.Errorf("temporal dial failed (address=%s namespace=%s): %w", cfg.Address, cfg.Namespace, err)
	}
	log.Info("Connected to Temporal", "address", cfg.Address, "namespace", cfg.Namespace)

	if cfg.AutoRegisterNamespace {
		if err := EnsureNamespace(context.Background(), cfg, log); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func clientOptions(log *logger.Logger, cfg Config, withNamespace bool) (temporalsdkclient.Options, error) {
	opts := temporalsdkclient.Options{HostPort: cfg.Address, Logger: log}
	// The namespace client must not send a namespace header; the namespace may not exist yet.
	if withNamespace {
		opts.Namespace = cfg.Namespace
	}
	if cfg.tlsEnabled() {
		tlsCfg, err := loadTLSConfig(cfg)
		if err != nil {
			return opts, err
		}
		opts.ConnectionOptions.TLS = tlsCfg
	}
	return opts, nil
}

// Retry calls fn until it succeeds, reports a permanent failure, ctx is done,
// or cfg.DialMaxWait has elapsed. Attempts are spaced by ClampBackoff.
func Retry(ctx context.Context, log *logger.Logger, cfg Config, op string, fn func(ctx context.Context) (retryable bool, err error)) error {
	deadline := time.Now().Add(cfg.DialMaxWait)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		retryable, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info(op+" succeeded", "attempts", attempt)
			}
			return nil
		}
		if !retryable || cfg.DialMaxWait <= 0 || time.Now().After(deadline) {
			return err
		}
		log.Warn(op+" failed; retrying", "attempt", attempt, "error", err)

		t := time.NewTimer(ClampBackoff(cfg.BackoffBase, cfg.BackoffMax, attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// EnsureNamespace registers cfg.Namespace when it does not exist yet.
func EnsureNamespace(ctx context.Context, cfg Config, log *logger.Logger) error {
	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" || !cfg.Enabled() {
		return nil
	}
	opts, err := clientOptions(log, cfg, false)
	if err != nil {
		return err
	}
	nsClient, err := temporalsdkclient.NewNamespaceClient(opts)
	if err != nil {
		return fmt.Errorf("temporal namespace ensure: init namespace client: %w", err)
	}
	defer nsClient.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	retention := max(cfg.NamespaceRetention, minNamespaceRetention)
	err = Retry(ctx, log, cfg, "temporal namespace ensure", func(ctx context.Context) (bool, error) {
		_, err := nsClient.Describe(ctx, namespace)
		var notFound *serviceerror.NamespaceNotFound
		switch {
		case err == nil:
			return false, nil
		case !errors.As(err, &notFound):
			return isRetryableRPC(err), fmt.Errorf("describe namespace: %w", err)
		}

		err = nsClient.Register(ctx, &workflowservice.RegisterNamespaceRequest{
			Namespace:                        namespace,
			Description:                      "medicore study processing",
			WorkflowExecutionRetentionPeriod: durationpb.New(retention),
		})
		var exists *serviceerror.NamespaceAlreadyExists
		if err == nil || errors.As(err, &exists) {
			log.Info("Temporal namespace ready", "namespace", namespace, "retention", retention.String())
			return false, nil
		}
		return isRetryableRPC(err), fmt.Errorf("register namespace: %w", err)
	})
	if err != nil {
		return fmt.Errorf("temporal namespace ensure (namespace=%s): %w", namespace, err)
	}
	return nil
}

func loadTLSConfig(cfg Config) (*tls.Config, error) {
	if cfg.ClientCertPath == "" || cfg.ClientKeyPath == "" {
		return nil, errors.New("temporal tls: TEMPORAL_CLIENT_CERT_PATH and TEMPORAL_CLIENT_KEY_PATH must both be set")
	}
	cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("temporal tls: load client cert/key: %w", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if cfg.ClientCAPath == "" {
		return tlsCfg, nil
	}
	pem, err := os.ReadFile(cfg.ClientCAPath)
	if err != nil {
		return nil, fmt.Errorf("temporal tls: read CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("temporal tls: CA file holds no PEM certificates")
	}
	tlsCfg.RootCAs = pool
	return tlsCfg, nil
}

// ClampBackoff doubles base per attempt, capped at max.
func ClampBackoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

func isRetryableRPC(err error) bool {
	s, ok := status.FromError(err)
	if !ok {
		return errors.Is(err, context.DeadlineExceeded)
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	}
	return false
}
