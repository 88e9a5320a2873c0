package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edu-insight/lms-quality-etl/internal/models"
	"github.com/edu-insight/lms-quality-etl/pkg/config"
	"github.com/edu-insight/lms-quality-etl/pkg/export"
	"github.com/edu-insight/lms-quality-etl/pkg/jobs"
)

const exportJobType = "run_export"

var exportHeaders = []string{
	"course_id", "course", "period", "students",
	"1.1 compliance", "1.2 approval", "1.3 mean", "1.3 median", "1.3 stddev",
	"1.4 participation", "1.5 completion", "2.1 methodology", "2.2 evaluative",
	"3.1 excellence", "3.2 feedback",
}

// ExportService renders per-run CSV and PDF indicator tables. Rendering
// happens off the run's critical path through the jobs queue, with
// retries for transient disk failures.
type ExportService struct {
	cfg    config.ExportConfig
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewExportService constructs the export service and its worker queue.
func NewExportService(cfg config.ExportConfig, logger *zap.Logger) *ExportService {
	s := &ExportService{
		cfg:    cfg,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
	s.queue = jobs.NewQueue("exports", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start begins the export workers.
func (s *ExportService) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ExportService) Stop() {
	if !s.cfg.Enabled {
		return
	}
	s.queue.Stop()
}

// EnqueueRun schedules export rendering for a completed run.
func (s *ExportService) EnqueueRun(summary models.RunSummary) error {
	if !s.cfg.Enabled {
		return nil
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    exportJobType,
		Payload: summary,
	})
}

func (s *ExportService) handle(_ context.Context, job jobs.Job) error {
	summary, ok := job.Payload.(models.RunSummary)
	if !ok {
		s.logger.Error("export job carries unexpected payload", zap.String("job_id", job.ID))
		return nil // not retryable
	}

	table := buildExportTable(summary.Facts)

	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	csvBytes, err := s.csv.Render(table)
	if err != nil {
		return fmt.Errorf("render run csv: %w", err)
	}
	csvPath := filepath.Join(s.cfg.Dir, fmt.Sprintf("run-%s.csv", summary.RunID))
	if err := os.WriteFile(csvPath, csvBytes, 0o644); err != nil {
		return fmt.Errorf("write run csv: %w", err)
	}

	title := fmt.Sprintf("Course quality indicators %s to %s",
		formatUnixDate(summary.Window.Start), formatUnixDate(summary.Window.End))
	pdfBytes, err := s.pdf.Render(table, title)
	if err != nil {
		return fmt.Errorf("render run pdf: %w", err)
	}
	pdfPath := filepath.Join(s.cfg.Dir, fmt.Sprintf("run-%s.pdf", summary.RunID))
	if err := os.WriteFile(pdfPath, pdfBytes, 0o644); err != nil {
		return fmt.Errorf("write run pdf: %w", err)
	}

	s.logger.Info("run export written",
		zap.String("run_id", summary.RunID),
		zap.String("csv", csvPath),
		zap.String("pdf", pdfPath),
		zap.Int("facts", len(summary.Facts)),
	)
	return nil
}

func buildExportTable(facts []models.CourseFact) export.Table {
	rows := make([][]string, 0, len(facts))
	for _, f := range facts {
		rows = append(rows, []string{
			fmt.Sprintf("%d", f.CourseID),
			f.CourseName,
			f.Period.Name(),
			fmt.Sprintf("%d", f.StudentsProcessed),
			formatPercent(f.Compliance),
			formatPercent(f.Approval),
			fmt.Sprintf("%.2f", f.Grades.Mean),
			fmt.Sprintf("%.2f", f.Grades.Median),
			fmt.Sprintf("%.2f", f.Grades.StdDev),
			formatPercent(f.Participation),
			formatPercent(f.Completion),
			formatPercent(f.ActiveMethodology),
			formatPercent(f.EvaluativeRatio),
			formatPercent(f.Excellence),
			formatPercent(f.Feedback),
		})
	}
	return export.Table{Headers: exportHeaders, Rows: rows}
}

// formatPercent renders an indicator as a percentage, or N/A when the
// denominator was zero.
func formatPercent(v models.IndicatorValue) string {
	pct := v.Percent()
	if pct == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *pct)
}

func formatUnixDate(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}
