package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/kizami/internal/errs"
	"github.com/and161185/kizami/internal/model"
	"github.com/and161185/kizami/internal/service"
)

type fakeReportRepo struct {
	rows []model.ClientHours
	err  error
}

func (f fakeReportRepo) SummarizeHoursByClient(context.Context, time.Time, time.Time) ([]model.ClientHours, error) {
	return f.rows, f.err
}

type fakeKeyCheck struct {
	key string
	err error
}

func (f fakeKeyCheck) ValidateAPIKey(_ context.Context, raw string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return raw != "" && raw == f.key, nil
}

func reportServer(t *testing.T, repo fakeReportRepo, keys fakeKeyCheck) http.Handler {
	t.Helper()
	return newTestServer(t, &fakeAuth{}, fakeRepo{}, WithReports(service.NewReportService(repo), keys)).Handler()
}

func reportReq(query, auth string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/reports/hours"+query, nil)
	if auth != "" {
		r.Header.Set("Authorization", auth)
	}
	return r
}

func TestHoursReport(t *testing.T) {
	t.Parallel()

	repo := fakeReportRepo{rows: []model.ClientHours{
		{ClientID: 2, ClientName: "Acme", Hours: 7.25},
		{ClientID: 1, ClientName: "Globex", Hours: 1.1},
	}}
	h := reportServer(t, repo, fakeKeyCheck{key: "k-123"})

	for _, auth := range []string{"Bearer k-123", "bearer k-123", "k-123", "  k-123  "} {
		rec := do(t, h, reportReq("?date_from=2026-02-01&date_to=2026-02-28", auth))
		require.Equal(t, http.StatusOK, rec.Code, auth)

		got := decode[hoursReportResponse](t, rec)
		require.Equal(t, reportPeriod{DateFrom: "2026-02-01", DateTo: "2026-02-28"}, got.Period)
		require.Equal(t, []clientHours{
			{ClientID: 2, ClientName: "Acme", Hours: 7.25},
			{ClientID: 1, ClientName: "Globex", Hours: 1.1},
		}, got.Summary)
		require.Equal(t, 8.35, got.TotalHours)
	}
}

func TestHoursReport_EmptySummaryIsArray(t *testing.T) {
	t.Parallel()
	h := reportServer(t, fakeReportRepo{}, fakeKeyCheck{key: "k"})

	rec := do(t, h, reportReq("?date_from=2026-02-01&date_to=2026-02-01", "k"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"summary":[]`)
	require.Contains(t, rec.Body.String(), `"total_hours":0`)
}

func TestHoursReport_Auth(t *testing.T) {
	t.Parallel()
	h := reportServer(t, fakeReportRepo{}, fakeKeyCheck{key: "k"})

	for _, auth := range []string{"", "Bearer", "Bearer wrong", "wrong"} {
		rec := do(t, h, reportReq("?date_from=2026-02-01&date_to=2026-02-02", auth))
		require.Equal(t, http.StatusUnauthorized, rec.Code, auth)
		require.Equal(t, errs.ErrUnauthorized.Error(), decode[errorBody](t, rec).Error)
	}

	h = reportServer(t, fakeReportRepo{}, fakeKeyCheck{err: errs.ErrStorage})
	rec := do(t, h, reportReq("?date_from=2026-02-01&date_to=2026-02-02", "k"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHoursReport_InvalidPeriod(t *testing.T) {
	t.Parallel()
	h := reportServer(t, fakeReportRepo{}, fakeKeyCheck{key: "k"})

	for _, q := range []string{
		"",
		"?date_from=2026-02-01",
		"?date_from=01.02.2026&date_to=2026-02-28",
		"?date_from=2026-02-30&date_to=2026-03-01",
		"?date_from=2026-03-01&date_to=2026-02-01",
	} {
		rec := do(t, h, reportReq(q, "k"))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, q)
	}
}

func TestHoursReport_StorageFailure(t *testing.T) {
	t.Parallel()
	h := reportServer(t, fakeReportRepo{err: errors.Join(errs.ErrStorage, errors.New("conn reset"))}, fakeKeyCheck{key: "k"})

	rec := do(t, h, reportReq("?date_from=2026-02-01&date_to=2026-02-02", "k"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "internal", decode[errorBody](t, rec).Error)
}

func TestHoursReport_NotMountedWithoutDatabase(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, &fakeAuth{}, fakeRepo{}).Handler()
	require.Equal(t, http.StatusNotFound, do(t, h, reportReq("?date_from=2026-02-01&date_to=2026-02-02", "k")).Code)
}
