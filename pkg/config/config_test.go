package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterWindowIsInclusive(t *testing.T) {
	cfg := FilterConfig{StartDate: "2025-09-01", EndDate: "2025-12-31"}

	start, end, err := cfg.Window()
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC).Unix(), start)
	// The end date covers its whole day.
	assert.Equal(t, time.Date(2025, time.December, 31, 23, 59, 59, 0, time.UTC).Unix(), end)
}

func TestFilterWindowRejectsBadDates(t *testing.T) {
	_, _, err := FilterConfig{StartDate: "01/09/2025", EndDate: "2025-12-31"}.Window()
	require.Error(t, err)

	_, _, err = FilterConfig{StartDate: "2025-09-01", EndDate: ""}.Window()
	require.Error(t, err)
}
