// Package jobs serves job-number search and job metadata from the external catalog.
package jobs

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/domain/models"
	"github.com/mamadbah2/piecework/internal/repository/jobcatalog"
)

// MinSearchLength is the shortest job-number fragment the catalog is searched with.
const MinSearchLength = 4

var errCatalogDisabled = errors.New("job catalog is not configured")

// Service fronts the job catalog. A nil catalog answers every call with a DependencyError.
type Service struct {
	catalog jobcatalog.Catalog
	logger  *zap.Logger
}

func NewService(catalog jobcatalog.Catalog, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{catalog: catalog, logger: logger}
}

// SearchJobNumbers returns catalog job numbers containing part.
func (s *Service) SearchJobNumbers(ctx context.Context, part string) ([]string, error) {
	part = strings.TrimSpace(part)
	if utf8.RuneCountInString(part) < MinSearchLength {
		return nil, models.NewValidationError("job number search needs at least %d characters", MinSearchLength)
	}
	if s.catalog == nil {
		return nil, &models.DependencyError{Dependency: "job catalog", Err: errCatalogDisabled}
	}

	numbers, err := s.catalog.SearchJobNumbers(ctx, part)
	if err != nil {
		s.logger.Error("job number search failed", zap.String("part", part), zap.Error(err))
		return nil, err
	}
	if numbers == nil {
		numbers = []string{}
	}
	return numbers, nil
}

// JobDetails returns catalog metadata for jobNumber.
func (s *Service) JobDetails(ctx context.Context, jobNumber string) (*models.JobMetadata, error) {
	jobNumber = strings.TrimSpace(jobNumber)
	if jobNumber == "" {
		return nil, models.NewValidationError("job number is required")
	}
	if s.catalog == nil {
		return nil, &models.DependencyError{Dependency: "job catalog", Err: errCatalogDisabled}
	}

	meta, err := s.catalog.JobDetails(ctx, jobNumber)
	if err != nil {
		s.logger.Error("job details lookup failed", zap.String("job_number", jobNumber), zap.Error(err))
		return nil, err
	}
	if meta == nil {
		return nil, &models.NotFoundError{Resource: "job", ID: jobNumber}
	}
	return meta, nil
}
