// Package jobcatalog reads job metadata from the relational job catalog.
package jobcatalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/config"
	"github.com/mamadbah2/piecework/internal/domain/models"
)

const (
	searchJobNumbersProc = "dbo.contractor_search_jobnumbers"
	jobDetailsProc       = "dbo.contractor_get_job_details"
)

// Catalog is the read-only view of the job catalog.
type Catalog interface {
	// SearchJobNumbers returns job numbers containing part.
	SearchJobNumbers(ctx context.Context, part string) ([]string, error)
	// JobDetails returns (nil, nil) when the catalog has no such job.
	JobDetails(ctx context.Context, jobNumber string) (*models.JobMetadata, error)
}

// SQLServerCatalog calls the catalog's stored procedures on SQL Server.
type SQLServerCatalog struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLServerCatalog opens a pooled connection to the catalog and pings it.
func NewSQLServerCatalog(ctx context.Context, cfg config.JobCatalogConfig, logger *zap.Logger) (*SQLServerCatalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sqlx.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open job catalog: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping job catalog: %w", err)
	}

	return &SQLServerCatalog{db: db, logger: logger}, nil
}

// SearchJobNumbers runs the job-number search procedure.
func (c *SQLServerCatalog) SearchJobNumbers(ctx context.Context, part string) ([]string, error) {
	rows, err := c.exec(ctx, searchJobNumbersProc, sql.Named("JobNumberPart", part))
	if err != nil {
		return nil, err
	}

	numbers := make([]string, 0, len(rows))
	for _, row := range rows {
		if n := jobNumberOf(row); n != "" {
			numbers = append(numbers, n)
		}
	}

	c.logger.Debug("job numbers searched", zap.String("part", part), zap.Int("matches", len(numbers)))
	return numbers, nil
}

// JobDetails runs the job-details procedure and maps its first row.
func (c *SQLServerCatalog) JobDetails(ctx context.Context, jobNumber string) (*models.JobMetadata, error) {
	rows, err := c.exec(ctx, jobDetailsProc, sql.Named("JobBookingNo", jobNumber))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	meta := metadataOf(rows[0])
	meta.JobNumber = jobNumber
	return &meta, nil
}

// Close releases the connection pool.
func (c *SQLServerCatalog) Close() error {
	return c.db.Close()
}

// exec runs a stored procedure and returns its first result set with column order kept.
func (c *SQLServerCatalog) exec(ctx context.Context, proc string, args ...any) ([]row, error) {
	rs, err := c.db.QueryxContext(ctx, proc, args...)
	if err != nil {
		return nil, &models.DependencyError{Dependency: "job catalog", Err: fmt.Errorf("exec %s: %w", proc, err)}
	}
	defer rs.Close()

	columns, err := rs.Columns()
	if err != nil {
		return nil, &models.DependencyError{Dependency: "job catalog", Err: fmt.Errorf("read %s columns: %w", proc, err)}
	}

	var out []row
	for rs.Next() {
		values := make(map[string]any, len(columns))
		if err := rs.MapScan(values); err != nil {
			return nil, &models.DependencyError{Dependency: "job catalog", Err: fmt.Errorf("scan %s: %w", proc, err)}
		}
		out = append(out, row{columns: columns, values: values})
	}
	if err := rs.Err(); err != nil {
		return nil, &models.DependencyError{Dependency: "job catalog", Err: fmt.Errorf("iterate %s: %w", proc, err)}
	}

	return out, nil
}
