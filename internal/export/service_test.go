package export

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"listing_syndicator/internal/config"
	"listing_syndicator/internal/domain"
	"listing_syndicator/internal/export/mocks"
	"listing_syndicator/internal/fault"
)

type ServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	guard   *mocks.MockCredentialChecker
	client  *mocks.MockPartnerClient
	history *mocks.MockHistoryStore

	service *Service
	cfg     config.ExportConfig
	logger  *slog.Logger
}

func (s *ServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.guard = mocks.NewMockCredentialChecker(s.ctrl)
	s.client = mocks.NewMockPartnerClient(s.ctrl)
	s.history = mocks.NewMockHistoryStore(s.ctrl)

	s.cfg = config.ExportConfig{
		PollInterval:          time.Millisecond,
		PollTimeout:           time.Second,
		ActivationConcurrency: 5,
		ActivationTimeout:     time.Second,
		HistorySize:           20,
	}

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = NewService(s.guard, s.client, s.history, nil, s.logger, s.cfg)
}

func (s *ServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) waitReport(h *RunHandle) (*domain.RunReport, error) {
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		s.FailNow("run did not finish in time")
	}
	return h.Report()
}

func (s *ServiceTestSuite) TestStartExport_SynchronousAllSucceed() {
	ctx := context.Background()

	s.guard.EXPECT().Check(ctx).Return(nil)

	s.client.EXPECT().SubmitExport(gomock.Any(), gomock.Any()).Return(&domain.SubmitResult{
		Outcome: &domain.ExportOutcome{Successful: 3, Failed: 0},
	}, nil)

	s.client.EXPECT().Activate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ref domain.ListingRef) (*domain.ActivationResult, error) {
			return &domain.ActivationResult{Ref: ref, Activated: true}, nil
		},
	).Times(3)

	s.history.EXPECT().Record(gomock.Any()).Times(1)

	handle, err := s.service.StartExport(ctx, []int{1, 2, 3})
	s.Require().NoError(err)

	report, runErr := s.waitReport(handle)
	s.NoError(runErr)
	s.Equal(domain.RunCompleted, report.Status)
	s.Equal(3, report.ExportStats.Successful)
	s.Equal(0, report.ExportStats.Failed)
	s.Len(report.ActivationResults, report.ExportStats.Successful)
	s.Equal(0, report.ActivationFailed)
	for _, a := range report.ActivationResults {
		s.True(a.Activated)
	}
}

func (s *ServiceTestSuite) TestStartExport_PartialExportFailure() {
	ctx := context.Background()

	s.guard.EXPECT().Check(ctx).Return(nil)

	s.client.EXPECT().SubmitExport(gomock.Any(), gomock.Any()).Return(&domain.SubmitResult{
		Outcome: &domain.ExportOutcome{
			Successful: 3,
			Failed:     2,
			Errors: []domain.ExportError{
				{Ref: domain.ListingRef{PropertyID: 4}, Step: domain.StepExport, Code: "ValidationFailed", Message: "missing address"},
				{Ref: domain.ListingRef{PropertyID: 5}, Step: domain.StepExport, Code: "ValidationFailed", Message: "missing price"},
			},
		},
	}, nil)

	var activated []int
	s.client.EXPECT().Activate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ref domain.ListingRef) (*domain.ActivationResult, error) {
			activated = append(activated, ref.PropertyID)
			return &domain.ActivationResult{Ref: ref, Activated: true}, nil
		},
	).Times(3)

	s.history.EXPECT().Record(gomock.Any()).Times(1)

	handle, err := s.service.StartExport(ctx, []int{1, 2, 3, 4, 5})
	s.Require().NoError(err)

	report, runErr := s.waitReport(handle)
	s.NoError(runErr)
	s.Equal(3, report.ExportStats.Successful)
	s.Equal(2, report.ExportStats.Failed)
	s.Len(report.ExportStats.Errors, 2)
	for _, e := range report.ExportStats.Errors {
		s.Equal(domain.StepExport, e.Step)
	}
	s.Len(report.ActivationResults, 3)

	sort.Ints(activated)
	s.Equal([]int{1, 2, 3}, activated)
}

func (s *ServiceTestSuite) TestStartExport_CredentialsInvalid() {
	ctx := context.Background()

	s.guard.EXPECT().Check(ctx).Return(
		fault.New(fault.KindCredentialInvalid, fault.CodeCredentialsExpired, "expired"),
	)
	// No SubmitExport and no Record expectations: any call fails the test.

	handle, err := s.service.StartExport(ctx, []int{1, 2})
	s.Nil(handle)
	s.Error(err)
	s.Equal(fault.KindCredentialInvalid, fault.KindOf(err))
}

func (s *ServiceTestSuite) TestStartExport_EmptySet() {
	handle, err := s.service.StartExport(context.Background(), nil)
	s.Nil(handle)
	s.Equal(fault.KindInvalidArgument, fault.KindOf(err))
}

func (s *ServiceTestSuite) TestStartExport_DuplicateIDs() {
	handle, err := s.service.StartExport(context.Background(), []int{7, 8, 7})
	s.Nil(handle)
	s.Equal(fault.KindInvalidArgument, fault.KindOf(err))
}

func (s *ServiceTestSuite) TestStartExport_AsyncJobPolled() {
	ctx := context.Background()

	s.guard.EXPECT().Check(ctx).Return(nil)

	s.client.EXPECT().SubmitExport(gomock.Any(), gomock.Any()).Return(&domain.SubmitResult{JobID: "job-42"}, nil)

	gomock.InOrder(
		s.client.EXPECT().JobStatus(gomock.Any(), "job-42").Return(&domain.JobSnapshot{
			Status: domain.JobRunning, Processed: 1, Total: 3, Successful: 1,
		}, nil),
		s.client.EXPECT().JobStatus(gomock.Any(), "job-42").Return(&domain.JobSnapshot{
			Status: domain.JobRunning, Processed: 2, Total: 3, Successful: 2,
		}, nil),
		s.client.EXPECT().JobStatus(gomock.Any(), "job-42").Return(&domain.JobSnapshot{
			Status: domain.JobSucceeded, Processed: 3, Total: 3, Successful: 2, Failed: 1,
			Errors: []domain.ExportError{
				{Ref: domain.ListingRef{PropertyID: 3}, Step: domain.StepExport, Code: "ExportFailed", Message: "rejected"},
			},
		}, nil),
	)

	s.client.EXPECT().Activate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ref domain.ListingRef) (*domain.ActivationResult, error) {
			return &domain.ActivationResult{Ref: ref, Activated: true}, nil
		},
	).Times(2)

	s.history.EXPECT().Record(gomock.Any()).Times(1)

	handle, err := s.service.StartExport(ctx, []int{1, 2, 3})
	s.Require().NoError(err)

	// Drain progress while the run executes; processed must never decrease.
	lastProcessed := -1
	for p := range handle.Progress() {
		if p.Stage == StageExporting {
			s.GreaterOrEqual(p.Processed, lastProcessed)
			lastProcessed = p.Processed
		}
	}

	report, runErr := s.waitReport(handle)
	s.NoError(runErr)
	s.Equal(2, report.ExportStats.Successful)
	s.Equal(1, report.ExportStats.Failed)
	s.Len(report.ActivationResults, 2)
}

func (s *ServiceTestSuite) TestStartExport_PollTimeout() {
	ctx := context.Background()

	s.cfg.PollInterval = time.Millisecond
	s.cfg.PollTimeout = 25 * time.Millisecond
	s.service = NewService(s.guard, s.client, s.history, nil, s.logger, s.cfg)

	s.guard.EXPECT().Check(ctx).Return(nil)
	s.client.EXPECT().SubmitExport(gomock.Any(), gomock.Any()).Return(&domain.SubmitResult{JobID: "job-slow"}, nil)
	s.client.EXPECT().JobStatus(gomock.Any(), "job-slow").Return(&domain.JobSnapshot{
		Status: domain.JobRunning, Processed: 1, Total: 3,
	}, nil).AnyTimes()

	s.history.EXPECT().Record(gomock.Any()).Times(1)

	handle, err := s.service.StartExport(ctx, []int{1, 2, 3})
	s.Require().NoError(err)

	report, runErr := s.waitReport(handle)
	s.Error(runErr)
	s.Equal(fault.KindPollTimeout, fault.KindOf(runErr))
	s.Equal(domain.RunFailed, report.Status)
	s.Equal(fault.CodePollTimeout, report.ErrorCode)
}

func (s *ServiceTestSuite) TestStartExport_SubmitHardFailure() {
	ctx := context.Background()

	s.guard.EXPECT().Check(ctx).Return(nil)
	s.client.EXPECT().SubmitExport(gomock.Any(), gomock.Any()).Return(nil,
		errors.New("connection refused"))
	s.history.EXPECT().Record(gomock.Any()).Times(1)

	handle, err := s.service.StartExport(ctx, []int{1})
	s.Require().NoError(err)

	report, runErr := s.waitReport(handle)
	s.Error(runErr)
	s.Equal(domain.RunFailed, report.Status)
	s.Equal(fault.CodeSubmitFailed, report.ErrorCode)
	s.Empty(report.ActivationResults)
}

func (s *ServiceTestSuite) TestCancel_DuringPolling() {
	ctx := context.Background()

	s.cfg.PollInterval = time.Hour // next tick never fires; cancellation must win
	s.service = NewService(s.guard, s.client, s.history, nil, s.logger, s.cfg)

	s.guard.EXPECT().Check(ctx).Return(nil)
	s.client.EXPECT().SubmitExport(gomock.Any(), gomock.Any()).Return(&domain.SubmitResult{JobID: "job-c"}, nil)

	var handle *RunHandle
	started := make(chan struct{})
	s.client.EXPECT().JobStatus(gomock.Any(), "job-c").DoAndReturn(
		func(context.Context, string) (*domain.JobSnapshot, error) {
			<-started
			handle.Cancel()
			return &domain.JobSnapshot{Status: domain.JobRunning, Processed: 1, Total: 2}, nil
		},
	).Times(1)

	s.history.EXPECT().Record(gomock.Any()).Times(1)

	handle, err := s.service.StartExport(ctx, []int{1, 2})
	s.Require().NoError(err)
	close(started)

	report, runErr := s.waitReport(handle)
	s.Error(runErr)
	s.Equal(domain.RunCanceled, report.Status)
	s.Equal(fault.CodeRunCanceled, report.ErrorCode)
}

func (s *ServiceTestSuite) TestRetryFailed_UnionOfFailures() {
	ctx := context.Background()

	prior := &domain.RunReport{
		RunID:  "run-1",
		Status: domain.RunCompleted,
		ExportStats: domain.ExportStats{
			Successful: 2,
			Failed:     2,
			Errors: []domain.ExportError{
				{Ref: domain.ListingRef{PropertyID: 10}, Step: domain.StepExport, Code: "ExportFailed"},
				{Ref: domain.ListingRef{PropertyID: 20}, Step: domain.StepExport, Code: "ExportFailed"},
			},
		},
		ActivationResults: []domain.ActivationResult{
			{Ref: domain.ListingRef{PropertyID: 20}, Activated: false, Code: "ActivationRejected"},
			{Ref: domain.ListingRef{PropertyID: 30}, Activated: false, Code: "ActivationTimeout"},
		},
		ActivationFailed: 2,
	}

	s.history.EXPECT().Get("run-1").Return(prior, true)
	s.guard.EXPECT().Check(ctx).Return(nil)

	var submitted []int
	s.client.EXPECT().SubmitExport(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, refs []domain.ListingRef) (*domain.SubmitResult, error) {
			for _, ref := range refs {
				submitted = append(submitted, ref.PropertyID)
			}
			return &domain.SubmitResult{Outcome: &domain.ExportOutcome{Successful: len(refs)}}, nil
		},
	)
	s.client.EXPECT().Activate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ref domain.ListingRef) (*domain.ActivationResult, error) {
			return &domain.ActivationResult{Ref: ref, Activated: true}, nil
		},
	).Times(3)
	s.history.EXPECT().Record(gomock.Any()).Times(1)

	handle, err := s.service.RetryFailed(ctx, "run-1")
	s.Require().NoError(err)

	report, runErr := s.waitReport(handle)
	s.NoError(runErr)
	s.NotEqual(prior.RunID, report.RunID)

	sort.Ints(submitted)
	s.Equal([]int{10, 20, 30}, submitted, "retry set must be the deduplicated union of failures")
}

func (s *ServiceTestSuite) TestRetryFailed_NoFailures() {
	prior := &domain.RunReport{
		RunID:       "run-ok",
		Status:      domain.RunCompleted,
		ExportStats: domain.ExportStats{Successful: 2},
		ActivationResults: []domain.ActivationResult{
			{Ref: domain.ListingRef{PropertyID: 1}, Activated: true},
			{Ref: domain.ListingRef{PropertyID: 2}, Activated: true},
		},
	}
	s.history.EXPECT().Get("run-ok").Return(prior, true)
	// No Record expectation: a retry with nothing to do leaves no history entry.

	handle, err := s.service.RetryFailed(context.Background(), "run-ok")
	s.Nil(handle)
	s.Equal(fault.KindNoFailuresToRetry, fault.KindOf(err))
}

func (s *ServiceTestSuite) TestRetryFailed_UnknownRun() {
	s.history.EXPECT().Get("nope").Return(nil, false)

	handle, err := s.service.RetryFailed(context.Background(), "nope")
	s.Nil(handle)
	s.Equal(fault.KindInvalidArgument, fault.KindOf(err))
}

func (s *ServiceTestSuite) TestCompletedRunIsPublished() {
	ctx := context.Background()

	pub := mocks.NewMockReportPublisher(s.ctrl)
	s.service = NewService(s.guard, s.client, s.history, pub, s.logger, s.cfg)

	s.guard.EXPECT().Check(ctx).Return(nil)
	s.client.EXPECT().SubmitExport(gomock.Any(), gomock.Any()).Return(&domain.SubmitResult{
		Outcome: &domain.ExportOutcome{Successful: 1},
	}, nil)
	s.client.EXPECT().Activate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ref domain.ListingRef) (*domain.ActivationResult, error) {
			return &domain.ActivationResult{Ref: ref, Activated: true}, nil
		},
	)
	s.history.EXPECT().Record(gomock.Any()).Times(1)
	pub.EXPECT().PublishReport(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	handle, err := s.service.StartExport(ctx, []int{1})
	s.Require().NoError(err)

	_, runErr := s.waitReport(handle)
	s.NoError(runErr)
}
