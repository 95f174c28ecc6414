package export

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"listing_syndicator/internal/domain"
)

type PartnerClient interface {
	SubmitExport(ctx context.Context, refs []domain.ListingRef) (*domain.SubmitResult, error)
	JobStatus(ctx context.Context, jobID string) (*domain.JobSnapshot, error)
	Activate(ctx context.Context, ref domain.ListingRef) (*domain.ActivationResult, error)
}

type CredentialChecker interface {
	Check(ctx context.Context) error
}

type HistoryStore interface {
	Record(report *domain.RunReport)
	Recent(n int) []*domain.RunReport
	Get(runID string) (*domain.RunReport, bool)
}

type ReportPublisher interface {
	PublishReport(ctx context.Context, report *domain.RunReport) error
}
