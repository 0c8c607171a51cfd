package cases

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/secondopinion/secondopinion/internal/platform/genai"
)

// analysisInstruction is the prompt appended after the inline documents.
const analysisInstruction = `You are a medical document analyst. Review the attached medical documents and respond with ONLY a JSON object, no markdown fences and no prose, in exactly this shape:
{"summary": "<2-3 sentence clinical summary>", "riskLevel": "<Low|Medium|High>", "extractedMarkers": ["<notable findings, abnormal values, diagnoses>"]}`

// CaseAlert is the payload fanned out to doctors when a case becomes ready.
type CaseAlert struct {
	CaseID      uuid.UUID
	PatientName string
	RiskLevel   RiskLevel
	Summary     string
}

// Notifier fans a ready case out to doctors. Implementations are best-effort
// and must never block case processing on delivery problems.
type Notifier interface {
	CaseReady(ctx context.Context, alert CaseAlert)
}

// NameResolver resolves a patient's display name for notifications.
type NameResolver interface {
	DisplayName(ctx context.Context, userID uuid.UUID) string
}

// AnalyzerConfig sizes the worker pool.
type AnalyzerConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// Analyzer is the supervised AI analysis worker pool. Jobs are enqueued
// after the submission transaction commits; every job ends with the case in
// PENDING_DOCTOR, whether the model call succeeded, produced garbage, or
// failed outright.
type Analyzer struct {
	repo     Repository
	records  RecordStore
	model    genai.Client
	notifier Notifier
	names    NameResolver
	logger   zerolog.Logger
	cfg      AnalyzerConfig

	jobs chan uuid.UUID
	wg   sync.WaitGroup
}

func NewAnalyzer(repo Repository, recs RecordStore, model genai.Client, notifier Notifier, names NameResolver, cfg AnalyzerConfig, logger zerolog.Logger) *Analyzer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 60 * time.Second
	}
	return &Analyzer{
		repo:     repo,
		records:  recs,
		model:    model,
		notifier: notifier,
		names:    names,
		logger:   logger,
		cfg:      cfg,
		jobs:     make(chan uuid.UUID, cfg.QueueSize),
	}
}

// Start launches the worker pool. Workers stop when ctx is cancelled.
func (a *Analyzer) Start(ctx context.Context) {
	for i := 0; i < a.cfg.Workers; i++ {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-a.jobs:
					a.run(ctx, id)
				}
			}
		}()
	}
}

// Wait blocks until all workers have exited.
func (a *Analyzer) Wait() {
	a.wg.Wait()
}

// Enqueue hands a case to the pool. It never fails the caller: when the
// queue is full the handoff moves to a goroutine so the submitting request
// is not blocked.
func (a *Analyzer) Enqueue(caseID uuid.UUID) {
	select {
	case a.jobs <- caseID:
	default:
		a.logger.Warn().Str("case_id", caseID.String()).Msg("analysis queue full, deferring enqueue")
		go func() { a.jobs <- caseID }()
	}
}

// run executes one job under a timeout with panic isolation. Any failure
// path falls through to forceReady so the case is never stranded in
// AI_PROCESSING.
func (a *Analyzer) run(ctx context.Context, caseID uuid.UUID) {
	jobCtx, cancel := context.WithTimeout(ctx, a.cfg.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().
				Str("case_id", caseID.String()).
				Interface("panic", r).
				Msg("analysis worker panicked")
			a.forceReady(context.WithoutCancel(ctx), caseID)
		}
	}()

	if err := a.analyze(jobCtx, caseID); err != nil {
		a.logger.Error().Err(err).Str("case_id", caseID.String()).Msg("analysis failed")
		a.forceReady(context.WithoutCancel(ctx), caseID)
	}
}

func (a *Analyzer) analyze(ctx context.Context, caseID uuid.UUID) error {
	c, err := a.repo.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, ErrCaseNotFound) {
			// Nothing to update; drop the job.
			a.logger.Warn().Str("case_id", caseID.String()).Msg("analysis job for missing case")
			return nil
		}
		return err
	}
	if len(c.RecordIDs) == 0 {
		a.logger.Warn().Str("case_id", caseID.String()).Msg("analysis job with no records")
		return nil
	}

	recs, err := a.records.GetMany(ctx, c.RecordIDs)
	if err != nil {
		return err
	}

	parts := make([]genai.Part, 0, len(recs))
	for _, rec := range recs {
		parts = append(parts, genai.Part{Data: rec.FileData, MIMEType: rec.ContentType})
	}

	raw, err := a.model.Generate(ctx, parts, analysisInstruction)
	if err != nil {
		return err
	}

	analysis := ParseAnalysis(raw, time.Now().UTC())
	applied, err := a.repo.SetAnalysis(ctx, caseID, analysis, PriorityForRisk(analysis.RiskLevel))
	if err != nil {
		return err
	}
	if !applied {
		// The case moved on while we were analyzing; do not notify twice.
		a.logger.Info().Str("case_id", caseID.String()).Msg("analysis result discarded, case no longer processing")
		return nil
	}

	a.notify(context.WithoutCancel(ctx), c.PatientID, caseID, analysis)
	return nil
}

// forceReady writes the failure analysis so the case still reaches the
// doctor queue. Errors here are logged and dropped: there is no further
// recovery, and the next read of the case will show it still processing for
// an operator to inspect.
func (a *Analyzer) forceReady(ctx context.Context, caseID uuid.UUID) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	analysis := FailureAnalysis(time.Now().UTC())
	applied, err := a.repo.SetAnalysis(ctx, caseID, analysis, PriorityNormal)
	if err != nil {
		a.logger.Error().Err(err).Str("case_id", caseID.String()).Msg("writing failure analysis failed")
		return
	}
	if !applied {
		return
	}

	c, err := a.repo.GetByID(ctx, caseID)
	if err != nil {
		a.logger.Error().Err(err).Str("case_id", caseID.String()).Msg("reloading case after failure analysis")
		return
	}
	a.notify(ctx, c.PatientID, caseID, analysis)
}

func (a *Analyzer) notify(ctx context.Context, patientID, caseID uuid.UUID, analysis AIAnalysis) {
	a.notifier.CaseReady(ctx, CaseAlert{
		CaseID:      caseID,
		PatientName: a.names.DisplayName(ctx, patientID),
		RiskLevel:   analysis.RiskLevel,
		Summary:     analysis.Summary,
	})
}
