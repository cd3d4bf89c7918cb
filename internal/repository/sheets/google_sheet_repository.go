package sheets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/piecework/internal/config"
	"github.com/mamadbah2/piecework/internal/domain/models"
)

const timestampLayout = "2006-01-02 15:04:05"

// Repository defines the persistence operations supported by the Google Sheets adapter.
type Repository interface {
	AppendRows(ctx context.Context, sheetRange string, rows [][]interface{}) error
}

// GoogleSheetRepository implements the Repository interface using the official Google Sheets API.
type GoogleSheetRepository struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetRepository builds a Google Sheets backed repository instance.
func NewGoogleSheetRepository(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheetRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheetRepository{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// AppendRows appends rows below the data in sheetRange in a single call.
func (r *GoogleSheetRepository) AppendRows(ctx context.Context, sheetRange string, rows [][]interface{}) error {
	if sheetRange == "" {
		return fmt.Errorf("sheetRange must not be empty")
	}
	if len(rows) == 0 {
		return nil
	}

	payload := &sheetsapi.ValueRange{Values: rows}

	call := r.service.Spreadsheets.Values.Append(r.spreadsheetID, sheetRange, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append rows into range %s: %w", sheetRange, err)
	}

	r.logger.Debug("rows appended to sheet", zap.String("range", sheetRange), zap.Int("rows", len(rows)))
	return nil
}

// SummaryExporter writes job summaries as one row per ledger operation:
// run time, job, operation id, operation name, total, completed, pending.
type SummaryExporter struct {
	repo       Repository
	sheetRange string
}

func NewSummaryExporter(repo Repository, sheetRange string) *SummaryExporter {
	return &SummaryExporter{repo: repo, sheetRange: sheetRange}
}

func (e *SummaryExporter) ExportSummaries(ctx context.Context, runAt time.Time, summaries []models.JobSummary) error {
	return e.repo.AppendRows(ctx, e.sheetRange, SummaryRows(runAt, summaries))
}

// SummaryRows flattens summaries into sheet rows.
func SummaryRows(runAt time.Time, summaries []models.JobSummary) [][]interface{} {
	stamp := runAt.Format(timestampLayout)

	var rows [][]interface{}
	for _, s := range summaries {
		for _, op := range s.Operations {
			rows = append(rows, []interface{}{
				stamp,
				s.JobID,
				op.OperationID,
				op.Name,
				op.TotalQuantity,
				op.TotalCompleted,
				op.Pending,
			})
		}
	}
	return rows
}
