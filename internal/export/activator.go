package export

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"listing_syndicator/internal/domain"
	"listing_syndicator/internal/fault"
)

// Activator fans out per-listing activation calls with a bounded degree of
// concurrency to cap Partner-side load.
type Activator struct {
	client      PartnerClient
	concurrency int
	itemTimeout time.Duration
	logger      *slog.Logger
}

func NewActivator(client PartnerClient, concurrency int, itemTimeout time.Duration, logger *slog.Logger) *Activator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Activator{
		client:      client,
		concurrency: concurrency,
		itemTimeout: itemTimeout,
		logger:      logger.With("component", "activator"),
	}
}

// Activate issues one independent activation call per ref. Every input ref
// produces exactly one result; a failure on one listing never prevents
// attempts on the others.
//
// Cancelling ctx stops new dispatch, but calls already dispatched run to
// completion and their results are still recorded: the Partner-side effect
// cannot be undone, so abandoning the response would only lose information.
func (a *Activator) Activate(ctx context.Context, refs []domain.ListingRef, emit func(Progress)) []domain.ActivationResult {
	results := make([]domain.ActivationResult, len(refs))
	var completed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(a.concurrency)

	for i, ref := range refs {
		if ctx.Err() != nil {
			results[i] = domain.ActivationResult{
				Ref:   ref,
				Code:  fault.CodeRunCanceled,
				Error: "run canceled before activation was dispatched",
			}
			continue
		}

		g.Go(func() error {
			results[i] = a.activateOne(ctx, ref)
			done := int(completed.Add(1))
			pct := 0
			if len(refs) > 0 {
				pct = done * 100 / len(refs)
			}
			emit(Progress{
				Stage:       StageActivating,
				Percent:     pct,
				Processed:   done,
				Total:       len(refs),
				CurrentItem: &ref,
			})
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func (a *Activator) activateOne(parent context.Context, ref domain.ListingRef) domain.ActivationResult {
	// Detach from run cancellation: once dispatched, the call runs to
	// completion under its own per-item timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), a.itemTimeout)
	defer cancel()

	res, err := a.client.Activate(ctx, ref)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			a.logger.Warn("activation timed out", "property_id", ref.PropertyID, "timeout", a.itemTimeout)
			return domain.ActivationResult{
				Ref:   ref,
				Code:  fault.CodeActivationTimeout,
				Error: "activation timed out",
			}
		}
		code := fault.CodeOf(err)
		if code == "" {
			code = "ActivationFailed"
		}
		a.logger.Warn("activation failed", "property_id", ref.PropertyID, "error", err)
		return domain.ActivationResult{Ref: ref, Code: code, Error: err.Error()}
	}

	if !res.Activated && res.Code == "" {
		res.Code = "ActivationRejected"
	}
	return *res
}
