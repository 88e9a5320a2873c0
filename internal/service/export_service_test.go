package service

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edu-insight/lms-quality-etl/internal/models"
	"github.com/edu-insight/lms-quality-etl/pkg/config"
)

func TestExportServiceWritesRunArtifacts(t *testing.T) {
	dir := t.TempDir()
	svc := NewExportService(config.ExportConfig{
		Enabled: true,
		Dir:     dir,
		Workers: 1,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	summary := models.RunSummary{
		RunID:  "test-run",
		Status: models.RunStatusCompleted,
		Window: models.DateWindow{
			Start: time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC).Unix(),
			End:   time.Date(2025, time.December, 31, 23, 59, 59, 0, time.UTC).Unix(),
		},
		Facts: []models.CourseFact{
			{
				CourseID:          42,
				CourseName:        "Linear Algebra",
				Period:            models.PeriodKey{Year: 2025, TermIndex: 1, TermLabel: "1"},
				Compliance:        models.IndicatorValue{Numerator: 6, Denominator: 10},
				Grades:            models.GradeStats{Mean: 11.18, Median: 9.5, StdDev: 4.35, Count: 5},
				StudentsProcessed: 5,
				// Feedback keeps a zero denominator: rendered as N/A.
			},
		},
	}
	require.NoError(t, svc.EnqueueRun(summary))

	csvPath := filepath.Join(dir, "run-test-run.csv")
	pdfPath := filepath.Join(dir, "run-test-run.pdf")
	require.Eventually(t, func() bool {
		_, csvErr := os.Stat(csvPath)
		_, pdfErr := os.Stat(pdfPath)
		return csvErr == nil && pdfErr == nil
	}, 5*time.Second, 20*time.Millisecond)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, exportHeaders, records[0])

	row := records[1]
	assert.Equal(t, "42", row[0])
	assert.Equal(t, "Linear Algebra", row[1])
	assert.Equal(t, "2526-1", row[2])
	assert.Equal(t, "60.00", row[4])
	assert.Equal(t, "N/A", row[len(row)-1])

	pdfBytes, err := os.ReadFile(pdfPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdfBytes), "%PDF"))
}

func TestExportServiceDisabledIsNoop(t *testing.T) {
	svc := NewExportService(config.ExportConfig{Enabled: false}, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	require.NoError(t, svc.EnqueueRun(models.RunSummary{RunID: "ignored"}))
}
