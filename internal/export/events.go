package export

import (
	"context"
	"sync"

	"listing_syndicator/internal/domain"
)

// Stage identifies which pipeline stage a progress update refers to.
type Stage int

const (
	StageExporting Stage = iota
	StageActivating
)

func (s Stage) String() string {
	switch s {
	case StageExporting:
		return "exporting"
	case StageActivating:
		return "activating"
	default:
		return "unknown"
	}
}

// Progress is one update emitted while a run executes. Updates are
// best-effort: a slow consumer drops intermediate updates, never blocks
// the pipeline.
type Progress struct {
	RunID                     string
	Stage                     Stage
	Percent                   int
	Processed                 int
	Total                     int
	CurrentItem               *domain.ListingRef
	EstimatedSecondsRemaining int
}

// RunHandle is the caller's view of an in-flight run. Progress and Done
// are closed when the run finishes; Report is valid after Done.
type RunHandle struct {
	runID    string
	progress chan Progress
	done     chan struct{}
	cancel   context.CancelFunc

	mu     sync.Mutex
	report *domain.RunReport
	err    error
}

func newRunHandle(runID string, cancel context.CancelFunc) *RunHandle {
	return &RunHandle{
		runID:    runID,
		progress: make(chan Progress, 16),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
}

func (h *RunHandle) RunID() string {
	return h.runID
}

// Progress returns the run's progress event channel. Closed when the run
// finishes.
func (h *RunHandle) Progress() <-chan Progress {
	return h.progress
}

// Done is closed once the final report is available.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Cancel stops the local pipeline. The Partner's remote job is not
// cancelled; already-dispatched activation calls run to completion.
func (h *RunHandle) Cancel() {
	h.cancel()
}

// Report returns the final report. Only valid after Done is closed. The
// error is set when the run failed before producing a partial report.
func (h *RunHandle) Report() (*domain.RunReport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.report, h.err
}

func (h *RunHandle) setResult(report *domain.RunReport, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.report = report
	h.err = err
}

// emit delivers a progress update without ever blocking the pipeline.
func (h *RunHandle) emit(p Progress) {
	p.RunID = h.runID
	select {
	case h.progress <- p:
	default:
	}
}

// Subscribe attaches callbacks to a run handle: onProgress for each update,
// onComplete once with the final report. Either callback may be nil.
func Subscribe(h *RunHandle, onProgress func(Progress), onComplete func(*domain.RunReport, error)) {
	go func() {
		for p := range h.Progress() {
			if onProgress != nil {
				onProgress(p)
			}
		}
		<-h.Done()
		if onComplete != nil {
			onComplete(h.Report())
		}
	}()
}
