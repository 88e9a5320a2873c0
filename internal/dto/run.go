package dto

import (
	"time"

	"github.com/edu-insight/lms-quality-etl/internal/models"
)

// TriggerRunRequest optionally narrows the processing window for an
// ad-hoc run. Both dates must be given together; omitted, the configured
// window applies.
type TriggerRunRequest struct {
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02,required_with=EndDate"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02,required_with=StartDate"`
}

// Window converts the override dates to an inclusive unix window, the
// end date extended to the last second of its day. ok is false when no
// override was supplied.
func (r TriggerRunRequest) Window() (models.DateWindow, bool, error) {
	if r.StartDate == "" && r.EndDate == "" {
		return models.DateWindow{}, false, nil
	}
	start, err := time.ParseInLocation("2006-01-02", r.StartDate, time.UTC)
	if err != nil {
		return models.DateWindow{}, false, err
	}
	end, err := time.ParseInLocation("2006-01-02", r.EndDate, time.UTC)
	if err != nil {
		return models.DateWindow{}, false, err
	}
	return models.DateWindow{
		Start: start.Unix(),
		End:   end.Unix() + 86399,
	}, true, nil
}

// RunAcceptedResponse acknowledges an asynchronous run trigger.
type RunAcceptedResponse struct {
	Status string `json:"status"`
}

// HealthResponse reports component liveness for the ops surface.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}
