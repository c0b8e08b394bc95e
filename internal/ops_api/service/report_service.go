package service

import (
	"context"
	"errors"
	"time"

	"github.com/custody-ledger/internal/domain/reconciliation"
)

type ReportServiceImpl struct {
	reports reconciliation.Repository
}

func NewReportService(reports reconciliation.Repository) ReportService {
	return &ReportServiceImpl{reports: reports}
}

func (s *ReportServiceImpl) Latest(ctx context.Context) (*reconciliation.Report, error) {
	report, err := s.reports.Latest(ctx)
	if errors.Is(err, reconciliation.ErrNoReport) {
		return nil, nil
	}
	return report, err
}

func (s *ReportServiceImpl) List(ctx context.Context, from, to time.Time, page, perPage int) ([]*reconciliation.Report, error) {
	return s.reports.ListByTimeRange(ctx, from, to, perPage, (page-1)*perPage)
}
