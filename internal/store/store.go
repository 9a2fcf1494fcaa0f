// Package store is the persistence gateway: typed CRUD and aggregation
// operations over the attendance tables. The gateway is the sole writer path;
// every mutation is a single call here.
package store

import (
	"context"
	"errors"

	"github.com/BigNeeme/Chinese/internal/model"
)

// ErrDuplicateStudentID signals a uniqueness conflict on the external
// student identifier.
var ErrDuplicateStudentID = errors.New("student id already in use")

// Gateway is the persistence contract. Lookups return (nil, nil) when the id
// is absent. Ordering contracts:
//
//   - ListStudents: (lastName, firstName) ascending, byte-wise (COLLATE "C"
//     in Postgres, plain string comparison in the in-memory store).
//   - ListSessions and RecentSessions: date descending, id ascending on ties.
//   - ListAttendance: session date descending, then student lastName
//     ascending (byte-wise). Inner-join semantics: records whose student or
//     session no longer exists are excluded.
type Gateway interface {
	ListStudents(ctx context.Context) ([]model.Student, error)
	GetStudent(ctx context.Context, id int) (*model.Student, error)
	CreateStudent(ctx context.Context, in model.NewStudent) (model.Student, error)
	UpdateStudent(ctx context.Context, id int, patch model.StudentPatch) (*model.Student, error)
	DeleteStudent(ctx context.Context, id int) (bool, error)

	ListSessions(ctx context.Context) ([]model.Session, error)
	GetSession(ctx context.Context, id int) (*model.Session, error)
	CreateSession(ctx context.Context, in model.NewSession) (model.Session, error)

	ListAttendance(ctx context.Context) ([]model.AttendanceDetail, error)
	ListAttendanceBySession(ctx context.Context, sessionID int) ([]model.AttendanceRecord, error)
	CreateAttendance(ctx context.Context, in model.NewAttendance) (model.AttendanceRecord, error)

	// ReplaceSessionAttendance deletes every record for the session named by
	// the first input record, then inserts the full batch. An empty batch
	// performs no writes and returns an empty slice. Implementations execute
	// the delete and insert as one atomic unit when the store allows it.
	ReplaceSessionAttendance(ctx context.Context, records []model.NewAttendance) ([]model.AttendanceRecord, error)

	CountStudents(ctx context.Context) (int, error)
	CountSessions(ctx context.Context) (int, error)
	// StatusCountsOn returns per-status counts for records whose session falls
	// on the given calendar date. All four statuses are present in the result.
	StatusCountsOn(ctx context.Context, date string) (map[model.Status]int, error)
	// AttendanceTotals returns the present count and total count across all
	// attendance records ever written.
	AttendanceTotals(ctx context.Context) (present, total int, err error)
	RecentSessions(ctx context.Context, limit int) ([]model.Session, error)
}
