package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks SearchStore,ResultStore,Runner,Dispatcher,Publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"recon/internal/search/events"
	"recon/internal/search/models"
	"recon/internal/search/orchestrator"
	"recon/internal/search/service/mocks"
	dErrors "recon/pkg/domain-errors"
	"recon/pkg/platform/sentinel"
	"recon/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	searches   *mocks.MockSearchStore
	results    *mocks.MockResultStore
	runner     *mocks.MockRunner
	dispatcher *mocks.MockDispatcher
	publisher  *mocks.MockPublisher
	service    *Service
	ctx        context.Context
	now        time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.searches = mocks.NewMockSearchStore(s.ctrl)
	s.results = mocks.NewMockResultStore(s.ctrl)
	s.runner = mocks.NewMockRunner(s.ctrl)
	s.dispatcher = mocks.NewMockDispatcher(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.service = New(s.searches, s.results, s.runner,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithDispatcher(s.dispatcher),
		WithPublisher(s.publisher),
	)
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithRequestID(requestcontext.WithTime(context.Background(), s.now), "req-1")
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) search(status models.SearchStatus) *models.Search {
	search, err := models.NewSearch(uuid.New(), models.SearchTypeEmail, "a@example.com", s.now)
	s.Require().NoError(err)
	search.Status = status
	return search
}

// =============================================================================
// Create
// =============================================================================

func (s *ServiceSuite) TestCreate() {
	s.Run("stores a pending search and announces it", func() {
		var stored *models.Search
		s.searches.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, search *models.Search) error {
				stored = search
				return nil
			})
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, e events.Lifecycle) error {
				s.Equal(events.TypeSearchCreated, e.Type)
				s.Equal("req-1", e.RequestID)
				s.Equal(stored.ID, e.SearchID)
				return nil
			})

		search, err := s.service.Create(s.ctx, models.SearchTypeEmail, "  a@example.com ")
		s.Require().NoError(err)
		s.Equal(models.SearchStatusPending, search.Status)
		s.Equal("a@example.com", search.Query)
		s.True(search.CreatedAt.Equal(s.now))
	})

	s.Run("rejects an empty query", func() {
		_, err := s.service.Create(s.ctx, models.SearchTypeEmail, "   ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("maps a duplicate id to conflict", func() {
		s.searches.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict)
		_, err := s.service.Create(s.ctx, models.SearchTypeEmail, "a@example.com")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("publish failures do not fail creation", func() {
		s.searches.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
		_, err := s.service.Create(s.ctx, models.SearchTypeEmail, "a@example.com")
		s.NoError(err)
	})
}

func (s *ServiceSuite) TestCreateAndDispatch() {
	s.Run("dispatches the new search", func() {
		s.searches.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
		s.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(nil)

		search, err := s.service.CreateAndDispatch(s.ctx, models.SearchTypeEmail, "a@example.com")
		s.Require().NoError(err)
		s.Equal(models.SearchStatusPending, search.Status)
	})

	s.Run("a rejected dispatch leaves the search pending", func() {
		s.searches.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
		s.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).
			Return(dErrors.New(dErrors.CodeUnavailable, "execution capacity exhausted"))

		search, err := s.service.CreateAndDispatch(s.ctx, models.SearchTypeEmail, "a@example.com")
		s.Require().NoError(err)
		s.Equal(models.SearchStatusPending, search.Status)
	})
}

func (s *ServiceSuite) TestCreateAndDispatchWithoutDispatcherRunsInline() {
	svc := New(s.searches, s.results, s.runner,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	completed := s.search(models.SearchStatusCompleted)

	s.searches.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.runner.EXPECT().Execute(gomock.Any(), gomock.Any()).
		Return(&orchestrator.ExecutionSummary{Status: models.SearchStatusCompleted}, nil)
	s.searches.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(completed, nil)

	search, err := svc.CreateAndDispatch(s.ctx, models.SearchTypeEmail, "a@example.com")
	s.Require().NoError(err)
	s.Equal(models.SearchStatusCompleted, search.Status)
}

// =============================================================================
// Read side
// =============================================================================

func (s *ServiceSuite) TestListNormalizesPaging() {
	s.searches.EXPECT().List(gomock.Any(), models.ListFilter{Page: 1, Size: models.MaxPageSize}).
		Return(&models.SearchPage{Page: 1, Size: models.MaxPageSize}, nil)

	page, err := s.service.List(s.ctx, models.ListFilter{Page: -3, Size: 5000})
	s.Require().NoError(err)
	s.Equal(1, page.Page)
}

func (s *ServiceSuite) TestStatsFailure() {
	s.searches.EXPECT().Overview(gomock.Any()).Return(nil, errors.New("connection reset"))
	_, err := s.service.Stats(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestSourceStats() {
	s.Run("unknown search", func() {
		s.searches.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.SourceStats(s.ctx, uuid.New())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("returns per-source stats", func() {
		search := s.search(models.SearchStatusCompleted)
		want := map[string]models.SourceStats{"gravatar": {Count: 1, AvgConfidence: 0.7}}
		s.searches.EXPECT().FindByID(gomock.Any(), search.ID).Return(search, nil)
		s.results.EXPECT().StatsBySearch(gomock.Any(), search.ID).Return(want, nil)

		got, err := s.service.SourceStats(s.ctx, search.ID)
		s.Require().NoError(err)
		s.Equal(want, got)
	})
}

// =============================================================================
// Delete
// =============================================================================

func (s *ServiceSuite) TestDelete() {
	s.Run("removes results then the search", func() {
		search := s.search(models.SearchStatusCompleted)
		gomock.InOrder(
			s.searches.EXPECT().FindByID(gomock.Any(), search.ID).Return(search, nil),
			s.results.EXPECT().DeleteBySearch(gomock.Any(), search.ID).Return(3, nil),
			s.searches.EXPECT().Delete(gomock.Any(), search.ID).Return(nil),
			s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, e events.Lifecycle) error {
					s.Equal(events.TypeSearchDeleted, e.Type)
					return nil
				}),
		)
		s.NoError(s.service.Delete(s.ctx, search.ID))
	})

	s.Run("unknown search", func() {
		s.searches.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)
		err := s.service.Delete(s.ctx, uuid.New())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("refuses a running search", func() {
		search := s.search(models.SearchStatusInProgress)
		s.searches.EXPECT().FindByID(gomock.Any(), search.ID).Return(search, nil)
		err := s.service.Delete(s.ctx, search.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("result cleanup failure aborts", func() {
		search := s.search(models.SearchStatusFailed)
		s.searches.EXPECT().FindByID(gomock.Any(), search.ID).Return(search, nil)
		s.results.EXPECT().DeleteBySearch(gomock.Any(), search.ID).Return(0, errors.New("disk full"))
		err := s.service.Delete(s.ctx, search.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}
