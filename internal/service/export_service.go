package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ooak-quotation-api/internal/models"
	appErrors "github.com/noah-isme/ooak-quotation-api/pkg/errors"
	"github.com/noah-isme/ooak-quotation-api/pkg/export"
)

// ExportFormat selects the rendering of an overdue report.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type overdueScanner interface {
	Scan(ctx context.Context, now time.Time) ([]models.OverdueQuotation, error)
}

type datasetRenderer interface {
	ContentType() string
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult is a rendered report ready to be sent as an attachment.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}

var overdueReportHeaders = []string{
	"Quotation ID", "Quotation Number", "Client", "Workflow Status", "Stage Entered", "Threshold Days", "Days Overdue", "Value At Risk", "Owner",
}

// ExportService renders overdue scans as downloadable reports.
type ExportService struct {
	scanner   overdueScanner
	renderers map[ExportFormat]datasetRenderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers use the defaults.
func NewExportService(scanner overdueScanner, logger *zap.Logger, csv, pdf datasetRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		scanner:   scanner,
		renderers: map[ExportFormat]datasetRenderer{ExportFormatCSV: csv, ExportFormatPDF: pdf},
		logger:    logger,
	}
}

// OverdueReport runs a scan at now without notifying anyone and renders the result.
func (s *ExportService) OverdueReport(ctx context.Context, now time.Time, format ExportFormat) (*ExportResult, error) {
	format = ExportFormat(strings.ToLower(strings.TrimSpace(string(format))))
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	items, err := s.scanner.Scan(ctx, now)
	if err != nil {
		return nil, err
	}

	data := export.Dataset{Headers: overdueReportHeaders, Rows: make([]map[string]string, 0, len(items))}
	for _, item := range items {
		data.Rows = append(data.Rows, map[string]string{
			"Quotation ID":     strconv.FormatInt(item.QuotationID, 10),
			"Quotation Number": item.QuotationNumber,
			"Client":           item.ClientName,
			"Workflow Status":  string(item.WorkflowStatus),
			"Stage Entered":    item.StageEnteredAt.UTC().Format(time.RFC3339),
			"Threshold Days":   strconv.Itoa(item.ThresholdDays),
			"Days Overdue":     strconv.Itoa(item.DaysOverdue),
			"Value At Risk":    strconv.FormatFloat(item.TotalAmount, 'f', 2, 64),
			"Owner":            item.Recipient,
		})
	}
	title := fmt.Sprintf("Overdue quotations as of %s", now.UTC().Format("2006-01-02 15:04 MST"))
	body, err := renderer.Render(data, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render overdue report")
	}
	s.logger.Debug("overdue report rendered", zap.String("format", string(format)), zap.Int("rows", len(items)))
	return &ExportResult{
		Filename:    fmt.Sprintf("overdue-quotations-%s.%s", now.UTC().Format("20060102-1504"), format),
		ContentType: renderer.ContentType(),
		Body:        body,
		Rows:        len(items),
	}, nil
}
