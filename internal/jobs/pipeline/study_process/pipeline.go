package study_process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/imaging/dicom"
	"github.com/yungbote/medicore-backend/internal/imaging/preview"
	"github.com/yungbote/medicore-backend/internal/imaging/quality"
	jobrt "github.com/yungbote/medicore-backend/internal/jobs/runtime"
	"github.com/yungbote/medicore-backend/internal/platform/dbctx"
	"github.com/yungbote/medicore-backend/internal/platform/objectstore"
)

var tracer = otel.Tracer("medicore/jobs/study_process")

func (p *Pipeline) Run(jc *jobrt.Context) (err error) {
	if jc == nil || jc.Job == nil {
		return nil
	}
	studyID, ok := jc.PayloadUUID("study_id")
	if !ok {
		return fmt.Errorf("missing study_id in payload")
	}

	ctx, span := tracer.Start(jc.Ctx, "study_process.run")
	defer span.End()
	span.SetAttributes(attribute.String("study_id", studyID.String()))

	jc.Progress("load", 5, "Loading study")
	study, err := p.studies.GetByID(dbctx.Context{Ctx: ctx}, studyID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load study: %w", err)
	}
	if study == nil {
		return fmt.Errorf("study %s not found", studyID)
	}
	log := p.log.With("study_id", study.ID, "job_id", jc.Job.ID)

	// From here on every exit leaves the study completed or failed.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("study processing panic: %v", r)
			span.RecordError(err)
			log.Error("Study processing panic", "panic", r)
			p.markFailed(ctx, study.ID, err)
		}
	}()

	if err := p.studies.MarkProcessing(dbctx.Context{Ctx: ctx}, study.ID); err != nil {
		span.RecordError(err)
		p.markFailed(ctx, study.ID, err)
		return fmt.Errorf("mark processing: %w", err)
	}

	metrics, previewKey, err := p.process(ctx, jc, study)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("Study processing failed", "error", err)
		p.markFailed(ctx, study.ID, err)
		return err
	}

	raw, _ := json.Marshal(metrics)
	if err := p.studies.MarkCompleted(dbctx.Context{Ctx: ctx}, study.ID, datatypes.JSON(raw), previewKey, time.Now().UTC()); err != nil {
		span.RecordError(err)
		p.markFailed(ctx, study.ID, err)
		return fmt.Errorf("mark completed: %w", err)
	}

	log.Info("Study processed", "overall_quality", metrics.OverallQuality, "preview_key", previewKey)
	jc.Succeed("done", map[string]any{
		"status":          "complete",
		"study_id":        study.ID.String(),
		"quality_metrics": metrics.Map(),
	})
	return nil
}

func (p *Pipeline) process(ctx context.Context, jc *jobrt.Context, study *types.Study) (quality.Metrics, string, error) {
	if err := os.MkdirAll(p.tempDir, 0o755); err != nil {
		return quality.Metrics{}, "", fmt.Errorf("create temp dir: %w", err)
	}
	workDir, err := os.MkdirTemp(p.tempDir, "study-"+study.ID.String()+"-")
	if err != nil {
		return quality.Metrics{}, "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	jc.Progress("download", 20, "Fetching original")
	local := filepath.Join(workDir, path.Base(study.S3Key))
	if err := p.store.Download(ctx, study.S3Key, local); err != nil {
		return quality.Metrics{}, "", fmt.Errorf("download %s: %w", study.S3Key, err)
	}
	if err := ctx.Err(); err != nil {
		return quality.Metrics{}, "", err
	}

	jc.Progress("decode", 40, "Decoding DICOM")
	ds, err := p.decoder.DecodeFile(local)
	if err != nil {
		return quality.Metrics{}, "", err
	}
	if res := p.validator.Validate(ds); !res.Valid {
		return quality.Metrics{}, "", fmt.Errorf("validation failed: %s", strings.Join(res.Violations, ", "))
	}
	px, err := ds.Pixels()
	if err != nil {
		return quality.Metrics{}, "", fmt.Errorf("read pixels: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return quality.Metrics{}, "", err
	}

	jc.Progress("assess", 60, "Assessing image quality")
	var (
		metrics    quality.Metrics
		previewKey string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer recoverTo(&err, "quality assessment")
		metrics = p.assessor.Assess(px)
		return nil
	})
	if p.previews != nil {
		g.Go(func() (err error) {
			defer recoverTo(&err, "preview")
			key, perr := p.storePreview(gctx, study, ds, px)
			if perr != nil {
				// Previews are best effort unless the job itself is out of time.
				if cerr := gctx.Err(); cerr != nil {
					return cerr
				}
				p.log.Warn("Preview generation failed", "study_id", study.ID, "error", perr)
				return nil
			}
			previewKey = key
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return quality.Metrics{}, "", err
	}
	if err := ctx.Err(); err != nil {
		return quality.Metrics{}, "", err
	}
	jc.Progress("finalize", 90, "Recording results")
	return metrics, previewKey, nil
}

// recoverTo turns a panic on an errgroup goroutine into its error; a panic
// there would otherwise take down the worker process.
func recoverTo(err *error, stage string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s panic: %v", stage, r)
	}
}

func (p *Pipeline) storePreview(ctx context.Context, study *types.Study, ds *dicom.Dataset, px *dicom.PixelBuffer) (string, error) {
	var win *preview.Window
	if c, w, ok := ds.WindowLevel(); ok {
		win = &preview.Window{Center: c, Width: w}
	}
	png, err := p.previews.Render(px, win, strings.TrimSpace(study.Modality+" "+study.StudyDescription))
	if err != nil {
		return "", err
	}
	key, err := objectstore.PreviewObjectKey(study.StudyInstanceUID, study.ID)
	if err != nil {
		return "", err
	}
	if err := p.store.Put(ctx, key, bytes.NewReader(png), "image/png"); err != nil {
		return "", fmt.Errorf("store preview: %w", err)
	}
	return key, nil
}

// markFailed records the failure even when the job context is already done.
func (p *Pipeline) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	detail := cause.Error()
	if errors.Is(cause, context.DeadlineExceeded) {
		detail = "processing timed out: " + detail
	}
	if err := p.studies.MarkFailed(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, id, detail); err != nil {
		p.log.Error("Failed to record study failure", "study_id", id, "error", err)
	}
}
