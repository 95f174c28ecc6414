package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"listing_syndicator/internal/domain"
	"listing_syndicator/internal/fault"
)

// Poller drives a submitted export job to a terminal state by querying the
// Partner's status endpoint at a fixed interval.
type Poller struct {
	client   PartnerClient
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewPoller(client PartnerClient, interval, timeout time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		client:   client,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("component", "poller"),
	}
}

// Wait polls until the job reaches a terminal state and returns the export
// outcome built from the final snapshot.
//
// Cancelling ctx stops future polls but does not cancel the remote job; the
// Partner keeps processing server-side and the engine simply detaches.
// If no terminal state is observed within the wall-clock ceiling, Wait
// fails with a PollTimeout fault. That is distinct from a genuine remote
// failure, because the remote job may still finish later.
func (p *Poller) Wait(ctx context.Context, job *domain.ExportJob, emit func(Progress)) (*domain.ExportOutcome, error) {
	logger := p.logger.With("job_id", job.JobID)
	logger.Info("polling export job", "total", job.TotalCount, "interval", p.interval)

	start := time.Now()
	deadline := time.NewTimer(p.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for first := true; ; first = false {
		if !first {
			select {
			case <-ctx.Done():
				logger.Info("poll loop detached", "reason", ctx.Err())
				return nil, ctx.Err()
			case <-deadline.C:
				return nil, fault.Newf(fault.KindPollTimeout, fault.CodePollTimeout,
					"job %s did not reach a terminal state within %s; the partner may still be processing",
					job.JobID, p.timeout)
			case <-ticker.C:
			}
		}

		snap, err := p.client.JobStatus(ctx, job.JobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// The client already retried transient failures; keep the loop
			// alive until the ceiling, the job may still complete.
			if fault.KindOf(err) == fault.KindTransient {
				logger.Warn("status poll failed", "error", err)
				continue
			}
			return nil, fmt.Errorf("poll job %s: %w", job.JobID, err)
		}

		p.apply(job, snap, start)
		emit(Progress{
			Stage:                     StageExporting,
			Percent:                   job.ProgressPercent(),
			Processed:                 job.ProcessedCount,
			Total:                     job.TotalCount,
			CurrentItem:               job.CurrentItem,
			EstimatedSecondsRemaining: job.EstimatedSecondsRemaining,
		})

		if job.Status.Terminal() {
			logger.Info("job reached terminal state",
				"status", job.Status,
				"successful", job.SuccessCount,
				"failed", job.FailureCount,
				"duration", time.Since(start),
			)
			return &domain.ExportOutcome{
				Successful: snap.Successful,
				Failed:     snap.Failed,
				Errors:     snap.Errors,
			}, nil
		}
	}
}

// apply folds one snapshot into the job. Processed never decreases even if
// the Partner reports a stale counter.
func (p *Poller) apply(job *domain.ExportJob, snap *domain.JobSnapshot, start time.Time) {
	job.Status = snap.Status
	if snap.Total > 0 {
		job.TotalCount = snap.Total
	}
	if snap.Processed > job.ProcessedCount {
		job.ProcessedCount = snap.Processed
	}
	job.SuccessCount = snap.Successful
	job.FailureCount = snap.Failed
	job.CurrentItem = snap.CurrentItem

	// Running average of seconds per item, recomputed every poll.
	if job.ProcessedCount > 0 && job.TotalCount >= job.ProcessedCount {
		perItem := time.Since(start).Seconds() / float64(job.ProcessedCount)
		job.EstimatedSecondsRemaining = int(float64(job.TotalCount-job.ProcessedCount) * perItem)
	} else {
		job.EstimatedSecondsRemaining = 0
	}
}
