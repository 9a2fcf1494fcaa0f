package model

import "time"

// Status is the closed set of attendance outcomes for a student at a session.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

// AllStatuses lists every valid status, in dashboard display order.
var AllStatuses = []Status{StatusPresent, StatusAbsent, StatusLate, StatusExcused}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	}
	return false
}

// Student is a person on the roster. ID is store-assigned; StudentID is the
// externally assigned identifier and is unique across the roster.
type Student struct {
	ID        int     `json:"id"`
	StudentID string  `json:"studentId"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Email     string  `json:"email"`
	PhotoURL  *string `json:"photoUrl,omitempty"`
}

// NewStudent carries validated fields for a student creation.
type NewStudent struct {
	StudentID string
	FirstName string
	LastName  string
	Email     string
	PhotoURL  *string
}

// StudentPatch carries validated fields for a partial update. Nil means
// "leave unchanged"; an all-nil patch is a no-op update.
type StudentPatch struct {
	StudentID *string
	FirstName *string
	LastName  *string
	Email     *string
	PhotoURL  *string
}

// Session is one class meeting. Date is a calendar date in YYYY-MM-DD with no
// time component. Sessions are never updated or deleted through the API.
type Session struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewSession carries validated fields for a session creation.
type NewSession struct {
	Name string
	Date string
}

// AttendanceRecord states that a student had a status at a session.
type AttendanceRecord struct {
	ID         int       `json:"id"`
	StudentID  int       `json:"studentId"`
	SessionID  int       `json:"sessionId"`
	Status     Status    `json:"status"`
	Notes      *string   `json:"notes,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

// NewAttendance carries validated fields for an attendance creation.
type NewAttendance struct {
	StudentID int
	SessionID int
	Status    Status
	Notes     *string
}

// AttendanceDetail is an attendance record joined with its student and
// session for read convenience.
type AttendanceDetail struct {
	AttendanceRecord
	Student Student `json:"student"`
	Session Session `json:"session"`
}

// DashboardStats is the aggregate summary shown on the dashboard.
// TodayAttendance always carries all four statuses, zero when absent.
type DashboardStats struct {
	TotalStudents         int            `json:"totalStudents"`
	TotalSessions         int            `json:"totalSessions"`
	TodayAttendance       map[Status]int `json:"todayAttendance"`
	OverallAttendanceRate int            `json:"overallAttendanceRate"`
	RecentSessions        []Session      `json:"recentSessions"`
}

// DateLayout is the wire and storage format for session dates.
const DateLayout = "2006-01-02"
