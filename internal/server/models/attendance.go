package models

import "time"

type AttendanceStatus string

const (
	StatusWorking             AttendanceStatus = "Working"
	StatusCompletedOnTime     AttendanceStatus = "Completed-OnTime"
	StatusLeftEarlyAuthorized AttendanceStatus = "LeftEarly-Authorized"
	StatusLeftEarlyFined      AttendanceStatus = "LeftEarly-Fined"
)

// AttendanceRecord is one working day. Date is midnight of the day in the
// shift timezone; ClockOut is nil while the record is open.
type AttendanceRecord struct {
	ID         string
	IdentityID string
	Username   string
	Date       time.Time
	ClockIn    time.Time
	ClockOut   *time.Time
	Status     AttendanceStatus
	FineAmount float64
}

// Open reports whether the record has not been clocked out.
func (r *AttendanceRecord) Open() bool { return r.ClockOut == nil }

type Task struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	AssignedAt  time.Time
	Completed   bool
	CompletedAt *time.Time
}
