// Package export implements the bulk export-and-activate orchestrator: it
// pushes listings to the channel partner, tracks the remote job to
// completion, fans out per-item activation calls and reconciles everything
// into a single RunReport.
package export

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"listing_syndicator/internal/config"
	"listing_syndicator/internal/domain"
	"listing_syndicator/internal/fault"
)

// Service is the UI-facing facade over the pipeline: credential guard →
// submission → poll loop → activation fan-out → aggregation → history.
type Service struct {
	guard     CredentialChecker
	client    PartnerClient
	history   HistoryStore
	publisher ReportPublisher // optional, may be nil
	poller    *Poller
	activator *Activator
	logger    *slog.Logger
}

func NewService(
	guard CredentialChecker,
	client PartnerClient,
	history HistoryStore,
	publisher ReportPublisher,
	logger *slog.Logger,
	cfg config.ExportConfig,
) *Service {
	return &Service{
		guard:     guard,
		client:    client,
		history:   history,
		publisher: publisher,
		poller:    NewPoller(client, cfg.PollInterval, cfg.PollTimeout, logger),
		activator: NewActivator(client, cfg.ActivationConcurrency, cfg.ActivationTimeout, logger),
		logger:    logger,
	}
}

// StartExport validates pre-flight conditions synchronously, then launches
// the pipeline in the background and returns a handle the UI subscribes
// to. Pre-flight failures abort before any remote submission: no partial
// state, no history entry.
func (s *Service) StartExport(ctx context.Context, listingIDs []int) (*RunHandle, error) {
	refs, err := refsFromIDs(listingIDs)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Check(ctx); err != nil {
		return nil, err
	}
	return s.launch(ctx, refs), nil
}

// RetryFailed starts a brand-new run over the failed subset of a prior
// report. The original report is never mutated; the retry produces its own
// report and history entry.
func (s *Service) RetryFailed(ctx context.Context, runID string) (*RunHandle, error) {
	report, ok := s.history.Get(runID)
	if !ok {
		return nil, fault.Newf(fault.KindInvalidArgument, fault.CodeInvalidArgument,
			"unknown run %s", runID)
	}

	refs := RetrySet(report)
	if len(refs) == 0 {
		return nil, fault.Newf(fault.KindNoFailuresToRetry, fault.CodeNoFailuresToRetry,
			"run %s has no failures to retry", runID)
	}

	if err := s.guard.Check(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("retrying failed listings", "origin_run_id", runID, "count", len(refs))
	return s.launch(ctx, refs), nil
}

// History returns up to limit past reports, most recent first.
func (s *Service) History(limit int) []*domain.RunReport {
	return s.history.Recent(limit)
}

func (s *Service) launch(ctx context.Context, refs []domain.ListingRef) *RunHandle {
	// The run outlives the StartExport call; only values are inherited
	// from the caller's context.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	handle := newRunHandle(uuid.NewString(), cancel)
	go s.run(runCtx, handle, refs)
	return handle
}

func (s *Service) run(ctx context.Context, h *RunHandle, refs []domain.ListingRef) {
	defer close(h.done)
	defer close(h.progress)

	started := time.Now()
	logger := s.logger.With("run_id", h.runID)
	logger.Info("starting export run", "listings", len(refs))

	submit, err := s.client.SubmitExport(ctx, refs)
	if err != nil {
		// The only hard failure: nothing was accepted by the Partner.
		s.finalize(ctx, h, failedReport(h.runID, started, fault.CodeSubmitFailed), err, logger)
		return
	}

	var outcome *domain.ExportOutcome
	if submit.Outcome != nil {
		outcome = submit.Outcome
		h.emit(Progress{
			Stage:     StageExporting,
			Percent:   100,
			Processed: len(refs),
			Total:     len(refs),
		})
	} else {
		job := &domain.ExportJob{
			JobID:       submit.JobID,
			ListingRefs: refs,
			SubmittedAt: time.Now(),
			Status:      domain.JobPending,
			TotalCount:  len(refs),
		}
		outcome, err = s.poller.Wait(ctx, job, h.emit)
		if err != nil {
			report := failedReport(h.runID, started, errorCode(err))
			if ctx.Err() != nil {
				report.Status = domain.RunCanceled
				report.ErrorCode = fault.CodeRunCanceled
			}
			s.finalize(ctx, h, report, err, logger)
			return
		}
	}

	resolveRefs(refs, outcome.Errors)
	toActivate := successfulRefs(refs, outcome)
	results := s.activator.Activate(ctx, toActivate, h.emit)

	report := Aggregate(h.runID, started, time.Now(), outcome, results)
	if ctx.Err() != nil {
		report.Status = domain.RunCanceled
		report.ErrorCode = fault.CodeRunCanceled
	}
	s.finalize(ctx, h, report, nil, logger)
}

func (s *Service) finalize(ctx context.Context, h *RunHandle, report *domain.RunReport, err error, logger *slog.Logger) {
	h.setResult(report, err)
	s.history.Record(report)

	if s.publisher != nil {
		if pubErr := s.publisher.PublishReport(context.WithoutCancel(ctx), report); pubErr != nil {
			logger.Warn("failed to publish run report", "error", pubErr)
		}
	}

	logger.Info("run finished",
		"status", report.Status,
		"error_code", report.ErrorCode,
		"export_successful", report.ExportStats.Successful,
		"export_failed", report.ExportStats.Failed,
		"activation_failed", report.ActivationFailed,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
}

func failedReport(runID string, started time.Time, code string) *domain.RunReport {
	return &domain.RunReport{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Status:     domain.RunFailed,
		ErrorCode:  code,
	}
}

func errorCode(err error) string {
	if code := fault.CodeOf(err); code != "" {
		return code
	}
	return fault.CodeSubmitFailed
}

// refsFromIDs validates the caller's listing set: non-empty and free of
// duplicate property ids. Violations are caller errors, not submission
// failures.
func refsFromIDs(listingIDs []int) ([]domain.ListingRef, error) {
	if len(listingIDs) == 0 {
		return nil, fault.New(fault.KindInvalidArgument, fault.CodeInvalidArgument,
			"no listings selected for export")
	}

	seen := make(map[int]struct{}, len(listingIDs))
	refs := make([]domain.ListingRef, 0, len(listingIDs))
	for _, id := range listingIDs {
		if _, dup := seen[id]; dup {
			return nil, fault.Newf(fault.KindInvalidArgument, fault.CodeInvalidArgument,
				"duplicate listing id %d", id)
		}
		seen[id] = struct{}{}
		refs = append(refs, domain.ListingRef{PropertyID: id})
	}
	return refs, nil
}
