package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cura-emr/scheduling-api/internal/models"
	"github.com/cura-emr/scheduling-api/pkg/export"
	appErrors "github.com/cura-emr/scheduling-api/pkg/errors"
	"github.com/cura-emr/scheduling-api/pkg/storage"
)

type daySheetSource interface {
	DaySheet(ctx context.Context, organizationID, providerID int64, date string) ([]models.Appointment, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFormat enumerates supported day sheet formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	FileName     string
	RelativePath string
	Token        string
	URL          string
	Format       ExportFormat
	SizeBytes    int
	ExpiresAt    time.Time
}

// ExportService renders provider day sheets to CSV or PDF and stores them
// behind short-lived signed download URLs.
type ExportService struct {
	appointments daySheetSource
	storage      fileStorage
	csv          csvRenderer
	pdf          pdfRenderer
	signer       *storage.SignedURLSigner
	logger       *zap.Logger
	cfg          ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(appointments daySheetSource, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		appointments: appointments,
		storage:      files,
		csv:          csv,
		pdf:          pdf,
		signer:       signer,
		logger:       logger,
		cfg:          cfg,
	}
}

// GenerateDaySheet renders the provider's appointments for a date and stores
// the file. An empty day still produces a valid export with headers only.
func (s *ExportService) GenerateDaySheet(ctx context.Context, organizationID, providerID int64, date string, format ExportFormat) (*ExportResult, error) {
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	appointments, err := s.appointments.DaySheet(ctx, organizationID, providerID, date)
	if err != nil {
		return nil, err
	}

	dataset := buildDaySheetDataset(appointments)
	title := fmt.Sprintf("Day Sheet %s (Provider %d)", date, providerID)

	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render day sheet")
	}

	filename := fmt.Sprintf("daysheet_p%d_%s_%s.%s", providerID, strings.ReplaceAll(date, "-", ""), time.Now().UTC().Format("150405"), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store day sheet")
	}

	jobID := fmt.Sprintf("daysheet-%d-%s", providerID, date)
	token, expiresAt, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("day sheet exported",
		zap.Int64("provider_id", providerID),
		zap.String("date", date),
		zap.String("format", string(format)),
		zap.Int("appointments", len(appointments)))

	return &ExportResult{
		FileName:     filename,
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       format,
		SizeBytes:    len(payload),
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func buildDaySheetDataset(appointments []models.Appointment) export.Dataset {
	rows := make([]map[string]string, 0, len(appointments))
	for _, appt := range appointments {
		location := appt.Location
		if appt.IsVirtual {
			location = "virtual"
		}
		rows = append(rows, map[string]string{
			"Time":       appointmentClock(appt.ScheduledAt),
			"Duration":   fmt.Sprintf("%d min", appt.Duration),
			"Patient ID": fmt.Sprintf("%d", appt.PatientID),
			"Title":      appt.Title,
			"Type":       string(appt.Type),
			"Status":     string(appt.Status),
			"Location":   location,
		})
	}
	return export.Dataset{
		Headers: []string{"Time", "Duration", "Patient ID", "Title", "Type", "Status", "Location"},
		Rows:    rows,
	}
}
