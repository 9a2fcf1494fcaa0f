package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BigNeeme/Chinese/internal/model"
	"github.com/BigNeeme/Chinese/internal/store"
)

var today = time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return today }

func seedStudent(t *testing.T, gw *store.Memory, studentID string) model.Student {
	t.Helper()
	st, err := gw.CreateStudent(context.Background(), model.NewStudent{
		StudentID: studentID,
		FirstName: "F" + studentID,
		LastName:  "L" + studentID,
		Email:     studentID + "@x.com",
	})
	require.NoError(t, err)
	return st
}

func seedSession(t *testing.T, gw *store.Memory, name, date string) model.Session {
	t.Helper()
	se, err := gw.CreateSession(context.Background(), model.NewSession{Name: name, Date: date})
	require.NoError(t, err)
	return se
}

func seedRecord(t *testing.T, gw *store.Memory, studentID, sessionID int, status model.Status) {
	t.Helper()
	_, err := gw.CreateAttendance(context.Background(), model.NewAttendance{
		StudentID: studentID,
		SessionID: sessionID,
		Status:    status,
	})
	require.NoError(t, err)
}

func TestDashboardEmptyStore(t *testing.T) {
	gw := store.NewMemory()
	engine := New(gw, fixedClock, nil)

	stats, err := engine.Dashboard(context.Background())
	require.NoError(t, err)

	require.Zero(t, stats.TotalStudents)
	require.Zero(t, stats.TotalSessions)
	require.Equal(t, 0, stats.OverallAttendanceRate)
	require.Empty(t, stats.RecentSessions)
	require.Len(t, stats.TodayAttendance, 4, "all four statuses present even with no records")
	for _, s := range model.AllStatuses {
		require.Equal(t, 0, stats.TodayAttendance[s])
	}
}

func TestOverallAttendanceRate(t *testing.T) {
	gw := store.NewMemory()
	engine := New(gw, fixedClock, nil)
	ctx := context.Background()

	st := seedStudent(t, gw, "S1")
	se := seedSession(t, gw, "Lecture", "2024-01-10")

	// all present -> 100
	for i := 0; i < 3; i++ {
		seedRecord(t, gw, st.ID, se.ID, model.StatusPresent)
	}
	stats, err := engine.Dashboard(ctx)
	require.NoError(t, err)
	require.Equal(t, 100, stats.OverallAttendanceRate)

	// 3 present out of 4 -> 75
	seedRecord(t, gw, st.ID, se.ID, model.StatusAbsent)
	stats, err = engine.Dashboard(ctx)
	require.NoError(t, err)
	require.Equal(t, 75, stats.OverallAttendanceRate)
}

func TestOverallAttendanceRateRoundsHalfUp(t *testing.T) {
	require.Equal(t, 33, rate(1, 3))
	require.Equal(t, 67, rate(2, 3))
	require.Equal(t, 50, rate(1, 2))
	require.Equal(t, 13, rate(1, 8)) // 12.5 rounds half up
	require.Equal(t, 0, rate(0, 0))
}

func TestTodayAttendanceScopedToClockDate(t *testing.T) {
	gw := store.NewMemory()
	engine := New(gw, fixedClock, nil)

	st := seedStudent(t, gw, "S1")
	todaySession := seedSession(t, gw, "Today", "2024-01-10")
	otherSession := seedSession(t, gw, "LastWeek", "2024-01-03")

	seedRecord(t, gw, st.ID, todaySession.ID, model.StatusPresent)
	seedRecord(t, gw, st.ID, todaySession.ID, model.StatusLate)
	seedRecord(t, gw, st.ID, todaySession.ID, model.StatusExcused)
	seedRecord(t, gw, st.ID, otherSession.ID, model.StatusAbsent)

	stats, err := engine.Dashboard(context.Background())
	require.NoError(t, err)

	sum := 0
	for _, n := range stats.TodayAttendance {
		sum += n
	}
	require.Equal(t, 3, sum, "today's counts sum to today's record count")
	require.Equal(t, 0, stats.TodayAttendance[model.StatusAbsent])
	require.Equal(t, 1, stats.TodayAttendance[model.StatusPresent])
}

func TestRecentSessionsCappedAtFive(t *testing.T) {
	gw := store.NewMemory()
	engine := New(gw, fixedClock, nil)

	dates := []string{"2024-01-02", "2024-01-05", "2024-01-01", "2024-01-04", "2024-01-07", "2024-01-03", "2024-01-06"}
	for _, d := range dates {
		seedSession(t, gw, "S"+d, d)
	}

	stats, err := engine.Dashboard(context.Background())
	require.NoError(t, err)
	require.Len(t, stats.RecentSessions, 5)
	require.Equal(t, "2024-01-07", stats.RecentSessions[0].Date)
	require.Equal(t, "2024-01-03", stats.RecentSessions[4].Date)
	require.Equal(t, 7, stats.TotalSessions)
}
