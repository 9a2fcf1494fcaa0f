package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BigNeeme/Chinese/internal/model"
)

// Memory is an in-memory Gateway used by tests and local development runs
// that have no Postgres available. It mirrors the Postgres implementation's
// ordering and cascade semantics.
type Memory struct {
	mu sync.Mutex

	students map[int]model.Student
	sessions map[int]model.Session
	records  map[int]model.AttendanceRecord

	nextStudentID int
	nextSessionID int
	nextRecordID  int

	// recordSeq preserves insertion order for ListAttendanceBySession.
	recordSeq []int

	now func() time.Time
}

// NewMemory creates an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		students:      make(map[int]model.Student),
		sessions:      make(map[int]model.Session),
		records:       make(map[int]model.AttendanceRecord),
		nextStudentID: 1,
		nextSessionID: 1,
		nextRecordID:  1,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source for created/recorded times.
func (m *Memory) SetClock(now func() time.Time) { m.now = now }

func (m *Memory) ListStudents(_ context.Context) ([]model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Student, 0, len(m.students))
	for _, st := range m.students {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}

func (m *Memory) GetStudent(_ context.Context, id int) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *Memory) CreateStudent(_ context.Context, in model.NewStudent) (model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.students {
		if existing.StudentID == in.StudentID {
			return model.Student{}, ErrDuplicateStudentID
		}
	}
	st := model.Student{
		ID:        m.nextStudentID,
		StudentID: in.StudentID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		PhotoURL:  in.PhotoURL,
	}
	m.nextStudentID++
	m.students[st.ID] = st
	return st, nil
}

func (m *Memory) UpdateStudent(_ context.Context, id int, patch model.StudentPatch) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	if patch.StudentID != nil {
		for otherID, existing := range m.students {
			if otherID != id && existing.StudentID == *patch.StudentID {
				return nil, ErrDuplicateStudentID
			}
		}
		st.StudentID = *patch.StudentID
	}
	if patch.FirstName != nil {
		st.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		st.LastName = *patch.LastName
	}
	if patch.Email != nil {
		st.Email = *patch.Email
	}
	if patch.PhotoURL != nil {
		st.PhotoURL = patch.PhotoURL
	}
	m.students[id] = st
	return &st, nil
}

func (m *Memory) DeleteStudent(_ context.Context, id int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[id]; !ok {
		return false, nil
	}
	delete(m.students, id)
	m.dropRecords(func(rec model.AttendanceRecord) bool { return rec.StudentID == id })
	return true, nil
}

// dropRecords removes records matching the predicate, preserving sequence
// order for the rest. Caller holds the lock.
func (m *Memory) dropRecords(match func(model.AttendanceRecord) bool) {
	kept := m.recordSeq[:0]
	for _, recID := range m.recordSeq {
		if match(m.records[recID]) {
			delete(m.records, recID)
			continue
		}
		kept = append(kept, recID)
	}
	m.recordSeq = kept
}

func (m *Memory) ListSessions(_ context.Context) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedSessions(), nil
}

func (m *Memory) RecentSessions(_ context.Context, limit int) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := m.sortedSessions()
	if limit >= 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// sortedSessions returns sessions date-descending, id ascending on ties.
// ISO dates compare correctly as strings. Caller holds the lock.
func (m *Memory) sortedSessions() []model.Session {
	out := make([]model.Session, 0, len(m.sessions))
	for _, se := range m.sessions {
		out = append(out, se)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) GetSession(_ context.Context, id int) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	se, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &se, nil
}

func (m *Memory) CreateSession(_ context.Context, in model.NewSession) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	se := model.Session{
		ID:        m.nextSessionID,
		Name:      in.Name,
		Date:      in.Date,
		CreatedAt: m.now(),
	}
	m.nextSessionID++
	m.sessions[se.ID] = se
	return se, nil
}

func (m *Memory) ListAttendance(_ context.Context) ([]model.AttendanceDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var details []model.AttendanceDetail
	for _, recID := range m.recordSeq {
		rec := m.records[recID]
		st, okStudent := m.students[rec.StudentID]
		se, okSession := m.sessions[rec.SessionID]
		if !okStudent || !okSession {
			// inner-join semantics: orphans are excluded, not an error
			continue
		}
		details = append(details, model.AttendanceDetail{
			AttendanceRecord: rec,
			Student:          st,
			Session:          se,
		})
	}
	sort.SliceStable(details, func(i, j int) bool {
		if details[i].Session.Date != details[j].Session.Date {
			return details[i].Session.Date > details[j].Session.Date
		}
		return details[i].Student.LastName < details[j].Student.LastName
	})
	return details, nil
}

func (m *Memory) ListAttendanceBySession(_ context.Context, sessionID int) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []model.AttendanceRecord
	for _, recID := range m.recordSeq {
		if rec := m.records[recID]; rec.SessionID == sessionID {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (m *Memory) CreateAttendance(_ context.Context, in model.NewAttendance) (model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertRecord(in), nil
}

// insertRecord appends a record. Caller holds the lock.
func (m *Memory) insertRecord(in model.NewAttendance) model.AttendanceRecord {
	rec := model.AttendanceRecord{
		ID:         m.nextRecordID,
		StudentID:  in.StudentID,
		SessionID:  in.SessionID,
		Status:     in.Status,
		Notes:      in.Notes,
		RecordedAt: m.now(),
	}
	m.nextRecordID++
	m.records[rec.ID] = rec
	m.recordSeq = append(m.recordSeq, rec.ID)
	return rec
}

func (m *Memory) ReplaceSessionAttendance(_ context.Context, records []model.NewAttendance) ([]model.AttendanceRecord, error) {
	if len(records) == 0 {
		return []model.AttendanceRecord{}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sessionID := records[0].SessionID
	m.dropRecords(func(rec model.AttendanceRecord) bool { return rec.SessionID == sessionID })
	inserted := make([]model.AttendanceRecord, 0, len(records))
	for _, in := range records {
		inserted = append(inserted, m.insertRecord(in))
	}
	return inserted, nil
}

func (m *Memory) CountStudents(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.students), nil
}

func (m *Memory) CountSessions(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions), nil
}

func (m *Memory) StatusCountsOn(_ context.Context, date string) (map[model.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.Status]int, len(model.AllStatuses))
	for _, s := range model.AllStatuses {
		counts[s] = 0
	}
	for _, rec := range m.records {
		se, ok := m.sessions[rec.SessionID]
		if !ok || se.Date != date {
			continue
		}
		counts[rec.Status]++
	}
	return counts, nil
}

func (m *Memory) AttendanceTotals(_ context.Context) (present, total int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		total++
		if rec.Status == model.StatusPresent {
			present++
		}
	}
	return present, total, nil
}
