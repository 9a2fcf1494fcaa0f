package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/BigNeeme/Chinese/internal/model"
)

// Postgres implements Gateway over a Postgres database.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Postgres-backed gateway.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const studentCols = `id, student_id, first_name, last_name, email, photo_url`

func scanStudent(row interface{ Scan(...any) error }, st *model.Student) error {
	return row.Scan(&st.ID, &st.StudentID, &st.FirstName, &st.LastName, &st.Email, &st.PhotoURL)
}

// ListStudents returns the roster ordered by (lastName, firstName) ascending.
// COLLATE "C" keeps the ordering byte-wise and locale-independent.
func (p *Postgres) ListStudents(ctx context.Context) ([]model.Student, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+studentCols+`
		FROM students
		ORDER BY last_name COLLATE "C", first_name COLLATE "C"
	`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		var st model.Student
		if err := scanStudent(rows, &st); err != nil {
			return nil, fmt.Errorf("list students: %w", err)
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// GetStudent returns a student by surrogate id, or nil when absent.
func (p *Postgres) GetStudent(ctx context.Context, id int) (*model.Student, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE id = $1`, id)
	var st model.Student
	if err := scanStudent(row, &st); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get student: %w", err)
	}
	return &st, nil
}

// CreateStudent inserts a student, assigning a surrogate id. A duplicate
// studentId yields ErrDuplicateStudentID.
func (p *Postgres) CreateStudent(ctx context.Context, in model.NewStudent) (model.Student, error) {
	st := model.Student{
		StudentID: in.StudentID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		PhotoURL:  in.PhotoURL,
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO students (student_id, first_name, last_name, email, photo_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, in.StudentID, in.FirstName, in.LastName, in.Email, in.PhotoURL).Scan(&st.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Student{}, ErrDuplicateStudentID
		}
		return model.Student{}, fmt.Errorf("create student: %w", err)
	}
	return st, nil
}

// UpdateStudent merges the provided fields into an existing row. Absent ids
// return (nil, nil); a conflicting studentId still fails.
func (p *Postgres) UpdateStudent(ctx context.Context, id int, patch model.StudentPatch) (*model.Student, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE students SET
			student_id = COALESCE($2, student_id),
			first_name = COALESCE($3, first_name),
			last_name  = COALESCE($4, last_name),
			email      = COALESCE($5, email),
			photo_url  = COALESCE($6, photo_url)
		WHERE id = $1
		RETURNING `+studentCols+`
	`, id, patch.StudentID, patch.FirstName, patch.LastName, patch.Email, patch.PhotoURL)
	var st model.Student
	if err := scanStudent(row, &st); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicateStudentID
		}
		return nil, fmt.Errorf("update student: %w", err)
	}
	return &st, nil
}

// DeleteStudent removes a student; attendance records follow via the schema's
// ON DELETE CASCADE. Returns false when the id was absent.
func (p *Postgres) DeleteStudent(ctx context.Context, id int) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete student: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete student: %w", err)
	}
	return n > 0, nil
}

const sessionCols = `id, name, date::text, created_at`

func scanSession(row interface{ Scan(...any) error }, se *model.Session) error {
	return row.Scan(&se.ID, &se.Name, &se.Date, &se.CreatedAt)
}

// ListSessions returns all sessions, date descending.
func (p *Postgres) ListSessions(ctx context.Context) ([]model.Session, error) {
	return p.querySessions(ctx, `
		SELECT `+sessionCols+` FROM sessions ORDER BY date DESC, id
	`)
}

// RecentSessions returns the most recently dated sessions.
func (p *Postgres) RecentSessions(ctx context.Context, limit int) ([]model.Session, error) {
	return p.querySessions(ctx, `
		SELECT `+sessionCols+` FROM sessions ORDER BY date DESC, id LIMIT $1
	`, limit)
}

func (p *Postgres) querySessions(ctx context.Context, query string, args ...any) ([]model.Session, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var se model.Session
		if err := scanSession(rows, &se); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		sessions = append(sessions, se)
	}
	return sessions, rows.Err()
}

// GetSession returns a session by id, or nil when absent.
func (p *Postgres) GetSession(ctx context.Context, id int) (*model.Session, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = $1`, id)
	var se model.Session
	if err := scanSession(row, &se); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &se, nil
}

// CreateSession inserts a session. CreatedAt is assigned by the store.
func (p *Postgres) CreateSession(ctx context.Context, in model.NewSession) (model.Session, error) {
	se := model.Session{Name: in.Name, Date: in.Date}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO sessions (name, date)
		VALUES ($1, $2::date)
		RETURNING id, created_at
	`, in.Name, in.Date).Scan(&se.ID, &se.CreatedAt)
	if err != nil {
		return model.Session{}, fmt.Errorf("create session: %w", err)
	}
	return se, nil
}

// ListAttendance returns every attendance record joined with its student and
// session. Inner joins drop orphaned records silently.
func (p *Postgres) ListAttendance(ctx context.Context) ([]model.AttendanceDetail, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT ar.id, ar.student_id, ar.session_id, ar.status, ar.notes, ar.recorded_at,
		       st.id, st.student_id, st.first_name, st.last_name, st.email, st.photo_url,
		       se.id, se.name, se.date::text, se.created_at
		FROM attendance_records ar
		JOIN students st ON st.id = ar.student_id
		JOIN sessions se ON se.id = ar.session_id
		ORDER BY se.date DESC, st.last_name COLLATE "C"
	`)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var details []model.AttendanceDetail
	for rows.Next() {
		var d model.AttendanceDetail
		err := rows.Scan(
			&d.ID, &d.AttendanceRecord.StudentID, &d.SessionID, &d.Status, &d.Notes, &d.RecordedAt,
			&d.Student.ID, &d.Student.StudentID, &d.Student.FirstName, &d.Student.LastName,
			&d.Student.Email, &d.Student.PhotoURL,
			&d.Session.ID, &d.Session.Name, &d.Session.Date, &d.Session.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("list attendance: %w", err)
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

const attendanceCols = `id, student_id, session_id, status, notes, recorded_at`

// ListAttendanceBySession returns the raw records for one session in storage
// order.
func (p *Postgres) ListAttendanceBySession(ctx context.Context, sessionID int) ([]model.AttendanceRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+attendanceCols+` FROM attendance_records WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	defer rows.Close()

	var records []model.AttendanceRecord
	for rows.Next() {
		var rec model.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.SessionID, &rec.Status, &rec.Notes, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("list session attendance: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CreateAttendance inserts a single record. No (student, session) uniqueness
// is enforced on this path.
func (p *Postgres) CreateAttendance(ctx context.Context, in model.NewAttendance) (model.AttendanceRecord, error) {
	rec, err := insertAttendance(ctx, p.db, in)
	if err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("create attendance: %w", err)
	}
	return rec, nil
}

// ReplaceSessionAttendance deletes all records for the first record's session
// and inserts the batch, in one transaction. The transaction closes the
// partial-failure window between the delete and the insert: either the session
// ends up with exactly the new batch, or it is left untouched.
func (p *Postgres) ReplaceSessionAttendance(ctx context.Context, records []model.NewAttendance) ([]model.AttendanceRecord, error) {
	if len(records) == 0 {
		return []model.AttendanceRecord{}, nil
	}
	sessionID := records[0].SessionID

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("replace attendance: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_records WHERE session_id = $1`, sessionID); err != nil {
		return nil, fmt.Errorf("replace attendance: %w", err)
	}

	inserted := make([]model.AttendanceRecord, 0, len(records))
	for _, in := range records {
		rec, err := insertAttendance(ctx, tx, in)
		if err != nil {
			return nil, fmt.Errorf("replace attendance: %w", err)
		}
		inserted = append(inserted, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("replace attendance: %w", err)
	}
	return inserted, nil
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertAttendance(ctx context.Context, db execer, in model.NewAttendance) (model.AttendanceRecord, error) {
	rec := model.AttendanceRecord{
		StudentID: in.StudentID,
		SessionID: in.SessionID,
		Status:    in.Status,
		Notes:     in.Notes,
	}
	err := db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (student_id, session_id, status, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, recorded_at
	`, in.StudentID, in.SessionID, in.Status, in.Notes).Scan(&rec.ID, &rec.RecordedAt)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	return rec, nil
}

// CountStudents counts all student rows.
func (p *Postgres) CountStudents(ctx context.Context) (int, error) {
	return p.count(ctx, `SELECT COUNT(*) FROM students`)
}

// CountSessions counts all session rows.
func (p *Postgres) CountSessions(ctx context.Context) (int, error) {
	return p.count(ctx, `SELECT COUNT(*) FROM sessions`)
}

func (p *Postgres) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// StatusCountsOn groups today's records by status in a single query so the
// per-status counts always sum to the row count at the moment of computation.
func (p *Postgres) StatusCountsOn(ctx context.Context, date string) (map[model.Status]int, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT ar.status, COUNT(*)
		FROM attendance_records ar
		JOIN sessions se ON se.id = ar.session_id
		WHERE se.date = $1::date
		GROUP BY ar.status
	`, date)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Status]int, len(model.AllStatuses))
	for _, s := range model.AllStatuses {
		counts[s] = 0
	}
	for rows.Next() {
		var status model.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("status counts: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// AttendanceTotals returns the all-time present and total record counts.
func (p *Postgres) AttendanceTotals(ctx context.Context) (present, total int, err error) {
	err = p.db.QueryRowContext(ctx, `
		SELECT COUNT(CASE WHEN status = 'present' THEN 1 END), COUNT(*)
		FROM attendance_records
	`).Scan(&present, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("attendance totals: %w", err)
	}
	return present, total, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
