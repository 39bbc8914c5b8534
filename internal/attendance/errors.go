package attendance

import "errors"

// Domain rule violations. Each message is shown to the agent as is.
var (
	ErrOutOfWindow            = errors.New("you are outside of a scheduled intervention window")
	ErrTooFarFromSite         = errors.New("you are too far from the site")
	ErrSiteCoordinatesMissing = errors.New("the site has no registered coordinates")
	ErrNoOpenSession          = errors.New("you have no open attendance session")
	ErrAlreadyCheckedIn       = errors.New("you are already checked in at this site today")
	ErrSiteInactive           = errors.New("the site is not active")
)

// Not-found errors.
var (
	ErrSiteNotFound   = errors.New("site not found")
	ErrRecordNotFound = errors.New("attendance record not found")
)

// ErrNotDrifted is returned by AutoClose when the stored record is no longer
// outside the geofence long enough to be closed.
var ErrNotDrifted = errors.New("attendance record is not drifted")

// ErrInvalidInput is returned by manual operations given inconsistent values.
var ErrInvalidInput = errors.New("invalid attendance input")
