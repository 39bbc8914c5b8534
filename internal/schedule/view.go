package schedule

import (
	"time"

	"fieldtrack/internal/db/models"
)

// DisplayStatus is the status shown to readers. A job still PLANNED or
// IN_PROGRESS after its planned end reads as NO_SHOW. The stored status is
// never changed by this.
func DisplayStatus(status models.InterventionStatus, plannedEnd, now time.Time) models.InterventionStatus {
	switch status {
	case models.InterventionPlanned, models.InterventionInProgress:
		if now.After(plannedEnd) {
			return models.InterventionNoShow
		}
	}
	return status
}
