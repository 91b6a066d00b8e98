package service

import (
	"context"
	"fmt"
	"math"
	"time"

	pkgcrypto "github.com/and161185/kizami/internal/crypto"
	"github.com/and161185/kizami/internal/errs"
	"github.com/and161185/kizami/internal/model"
	"github.com/and161185/kizami/internal/repository"
)

// ReportService defines read-only reports for API clients.
type ReportService interface {
	// SummarizeHours totals hours per client for dates from..to (YYYY-MM-DD, inclusive).
	SummarizeHours(ctx context.Context, from, to string) (model.HoursReport, error)
}

// APIKeyService validates machine credentials for the /api routes.
type APIKeyService interface {
	// ValidateAPIKey reports whether raw is an active key. Empty keys are never valid.
	ValidateAPIKey(ctx context.Context, raw string) (bool, error)
}

type ReportServiceImpl struct {
	repo repository.ReportRepository
}

var _ ReportService = (*ReportServiceImpl)(nil)

// NewReportService constructs ReportService.
func NewReportService(repo repository.ReportRepository) *ReportServiceImpl {
	return &ReportServiceImpl{repo: repo}
}

func (s *ReportServiceImpl) SummarizeHours(ctx context.Context, from, to string) (model.HoursReport, error) {
	f, ferr := time.Parse(dateLayout, from)
	t, terr := time.Parse(dateLayout, to)
	if ferr != nil || terr != nil {
		return model.HoursReport{}, fmt.Errorf("%w: date_from and date_to must be YYYY-MM-DD", errs.ErrValidation)
	}
	if f.After(t) {
		return model.HoursReport{}, fmt.Errorf("%w: date_from must not be after date_to", errs.ErrValidation)
	}

	rows, err := s.repo.SummarizeHoursByClient(ctx, f, t)
	if err != nil {
		return model.HoursReport{}, err
	}
	var total float64
	for _, r := range rows {
		total += r.Hours
	}
	if rows == nil {
		rows = []model.ClientHours{}
	}
	return model.HoursReport{
		From:       f,
		To:         t,
		Summary:    rows,
		TotalHours: math.Round(total*100) / 100,
	}, nil
}

type APIKeyServiceImpl struct {
	keys repository.APIKeyRepository
}

var _ APIKeyService = (*APIKeyServiceImpl)(nil)

// NewAPIKeyService constructs APIKeyService.
func NewAPIKeyService(keys repository.APIKeyRepository) *APIKeyServiceImpl {
	return &APIKeyServiceImpl{keys: keys}
}

func (s *APIKeyServiceImpl) ValidateAPIKey(ctx context.Context, raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return s.keys.ActiveHashExists(ctx, pkgcrypto.HashAPIKey(raw))
}

// CreateAPIKey generates a key, stores its hash under label and returns the raw
// key. The raw key is not recoverable afterwards.
func (s *APIKeyServiceImpl) CreateAPIKey(ctx context.Context, label string) (string, error) {
	if label == "" {
		return "", fmt.Errorf("%w: label is required", errs.ErrValidation)
	}
	raw, hash, err := pkgcrypto.NewAPIKey()
	if err != nil {
		return "", err
	}
	if _, err := s.keys.Create(ctx, &model.APIKey{KeyHash: hash, Label: label}); err != nil {
		return "", err
	}
	return raw, nil
}
