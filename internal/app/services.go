package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/medicore-backend/internal/imaging/dicom"
	"github.com/yungbote/medicore-backend/internal/imaging/preview"
	"github.com/yungbote/medicore-backend/internal/imaging/quality"
	"github.com/yungbote/medicore-backend/internal/imaging/validate"
	"github.com/yungbote/medicore-backend/internal/jobs/pipeline/study_process"
	jobruntime "github.com/yungbote/medicore-backend/internal/jobs/runtime"
	"github.com/yungbote/medicore-backend/internal/jobs/worker"
	"github.com/yungbote/medicore-backend/internal/observability"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
	"github.com/yungbote/medicore-backend/internal/realtime"
	"github.com/yungbote/medicore-backend/internal/services"
	"github.com/yungbote/medicore-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Auth    services.AuthService
	Jobs    services.JobService
	Uploads services.UploadService
	Studies services.StudyService

	JobNotifier    realtime.JobNotifier
	JobRegistry    *jobruntime.Registry
	JobWorker      *worker.Worker
	TemporalWorker *temporalworker.Runner
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	validator, err := buildValidator(cfg)
	if err != nil {
		return Services{}, err
	}
	assessor, err := quality.New(cfg.QualityAssessor)
	if err != nil {
		return Services{}, err
	}
	decoder := dicom.NewDecoder()

	var pub realtime.Publisher
	if clients.JobBus != nil {
		pub = clients.JobBus
	}
	jobNotifier := realtime.NewJobNotifier(log, pub)

	var td *services.TemporalDispatch
	if clients.Temporal != nil {
		td = &services.TemporalDispatch{
			Client:        clients.Temporal,
			TaskQueue:     cfg.Temporal.TaskQueue,
			MaxAttempts:   cfg.Worker.MaxAttempts,
			RetryInterval: cfg.Worker.RetryDelay,
		}
	}
	jobService := services.NewJobService(db, log, repos.JobRuns, jobNotifier, cfg.Worker.MaxAttempts, td)

	uploads := services.NewUploadService(db, log,
		repos.Studies, repos.Patients, repos.Audit,
		jobService, clients.Store, decoder, validator, cfg.TempDir,
	)
	studies := services.NewStudyService(db, log, repos.Studies, repos.JobRuns, jobService, clients.Store, cfg.PresignTTL)

	jobRegistry := jobruntime.NewRegistry()
	studyProcess := study_process.New(log, study_process.Deps{
		Studies:   repos.Studies,
		Store:     clients.Store,
		Decoder:   decoder,
		Validator: validator,
		Assessor:  assessor,
		Previews:  buildPreviewRenderer(log, cfg),
		TempDir:   cfg.TempDir,
	})
	if err := jobRegistry.Register(studyProcess); err != nil {
		return Services{}, err
	}

	// The pool executes jobs for both backends; it only polls job_run itself
	// when QUEUE_BACKEND=db.
	jobWorker := worker.NewWorker(db, log, repos.JobRuns, jobRegistry, jobNotifier, cfg.Worker).
		WithObserver(metrics)
	if clients.JobBus != nil {
		jobWorker = jobWorker.WithBus(clients.JobBus)
	}

	var temporalRunner *temporalworker.Runner
	if cfg.RunsWorker() && clients.Temporal != nil {
		r, err := temporalworker.NewRunner(log, clients.Temporal, cfg.Temporal, repos.JobRuns, jobWorker, cfg.Worker.Concurrency, cfg.Worker.MaxAttempts)
		if err != nil {
			return Services{}, fmt.Errorf("init temporal worker: %w", err)
		}
		temporalRunner = r
	}

	return Services{
		Auth:           services.NewAuthService(log, cfg.JWTSecretKey),
		Jobs:           jobService,
		Uploads:        uploads,
		Studies:        studies,
		JobNotifier:    jobNotifier,
		JobRegistry:    jobRegistry,
		JobWorker:      jobWorker,
		TemporalWorker: temporalRunner,
	}, nil
}

func buildValidator(cfg Config) (*validate.Validator, error) {
	policy := validate.DefaultPolicy()
	if cfg.PolicyFile != "" {
		p, err := validate.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("load DICOM policy: %w", err)
		}
		policy = p
	}
	if len(cfg.SupportedModalities) > 0 {
		policy = policy.WithModalities(cfg.SupportedModalities)
	}
	return validate.New(policy), nil
}

// buildPreviewRenderer returns nil when previews are disabled. A font that
// fails to load only drops the banner.
func buildPreviewRenderer(log *logger.Logger, cfg Config) *preview.Renderer {
	if !cfg.PreviewEnabled {
		return nil
	}
	opts := preview.Options{MaxDimension: cfg.PreviewMaxDim}
	if cfg.PreviewFont != "" {
		face, err := preview.LoadFontFace(cfg.PreviewFont, cfg.PreviewFontSize)
		if err != nil {
			log.Warn("Preview font unavailable; rendering without banner", "font", cfg.PreviewFont, "error", err)
		} else {
			opts.Banner = true
			opts.FontFace = face
		}
	}
	return preview.NewRenderer(opts)
}
