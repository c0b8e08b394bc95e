package handler

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/custody-ledger/internal/domain/reconciliation"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newReportRouter(svc *MockReportService, now time.Time) http.Handler {
	h := NewReportHandler(testLogger(), svc, clock.NewTestClock(now))
	router := setupTestRouter()
	router.GET("/reports/latest", h.Latest)
	router.GET("/reports", h.List)
	return router
}

func TestReportHandler_Latest(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Found", func(t *testing.T) {
		svc := new(MockReportService)
		svc.On("Latest", mock.Anything).Return(&reconciliation.Report{ID: "r1", StartedAt: now, WalletsChecked: 4}, nil)

		resp := doRequest(newReportRouter(svc, now), http.MethodGet, "/reports/latest", nil)
		assert.Equal(t, http.StatusOK, resp.Code)

		var body reconciliation.Report
		decodeResponse(t, resp, &body)
		assert.Equal(t, "r1", body.ID)
		assert.Equal(t, 4, body.WalletsChecked)
	})

	t.Run("NoneYet", func(t *testing.T) {
		svc := new(MockReportService)
		svc.On("Latest", mock.Anything).Return(nil, nil)

		resp := doRequest(newReportRouter(svc, now), http.MethodGet, "/reports/latest", nil)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("StoreFailure", func(t *testing.T) {
		svc := new(MockReportService)
		svc.On("Latest", mock.Anything).Return(nil, errors.New("server selection timeout"))

		resp := doRequest(newReportRouter(svc, now), http.MethodGet, "/reports/latest", nil)
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
	})
}

func TestReportHandler_List(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("DefaultWindow", func(t *testing.T) {
		svc := new(MockReportService)
		svc.On("List", mock.Anything, now.Add(-24*time.Hour), now, 1, 20).Return(nil, nil)

		resp := doRequest(newReportRouter(svc, now), http.MethodGet, "/reports", nil)
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `[]`, string(extractData(t, resp.Body.Bytes())))
		svc.AssertExpectations(t)
	})

	t.Run("ExplicitWindow", func(t *testing.T) {
		svc := new(MockReportService)
		from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
		svc.On("List", mock.Anything, mock.MatchedBy(from.Equal), mock.MatchedBy(to.Equal), 3, 5).
			Return([]*reconciliation.Report{{ID: "a"}, {ID: "b"}}, nil)

		resp := doRequest(newReportRouter(svc, now), http.MethodGet,
			"/reports?from=2026-02-01T00:00:00Z&to=2026-02-02T00:00:00Z&page=3&per_page=5", nil)
		assert.Equal(t, http.StatusOK, resp.Code)

		var body []reconciliation.Report
		decodeResponse(t, resp, &body)
		assert.Len(t, body, 2)
		svc.AssertExpectations(t)
	})

	t.Run("InvertedWindow", func(t *testing.T) {
		svc := new(MockReportService)
		resp := doRequest(newReportRouter(svc, now), http.MethodGet,
			"/reports?from=2026-02-02T00:00:00Z&to=2026-02-01T00:00:00Z", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("BadTimestamp", func(t *testing.T) {
		svc := new(MockReportService)
		resp := doRequest(newReportRouter(svc, now), http.MethodGet, "/reports?from=yesterday", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}
