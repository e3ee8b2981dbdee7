package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/member-signups/internal/models"
)

func newSnapshotRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSnapshotRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newSnapshotRepoMock(t)
	defer cleanup()

	repo := NewSnapshotRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO signup_snapshots")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	snapshot := &models.SignupSnapshot{
		EventCode:   "14600",
		MainEventID: 100,
		MemberCount: 2,
		Payload:     json.RawMessage(`{"signups":{}}`),
	}
	require.NoError(t, repo.Create(context.Background(), snapshot))
	require.NotEmpty(t, snapshot.ID)
	require.False(t, snapshot.CreatedAt.IsZero())

	rows := sqlmock.NewRows([]string{"id", "event_code", "main_event_id", "member_count", "payload", "created_at"}).
		AddRow(snapshot.ID, "14600", 100, 2, []byte(`{"signups":{}}`), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, event_code, main_event_id")).
		WithArgs(snapshot.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), snapshot.ID)
	require.NoError(t, err)
	require.Equal(t, snapshot.ID, found.ID)
	require.JSONEq(t, `{"signups":{}}`, string(found.Payload))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newSnapshotRepoMock(t)
	defer cleanup()

	repo := NewSnapshotRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, event_code")).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "nope")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSnapshotRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newSnapshotRepoMock(t)
	defer cleanup()

	repo := NewSnapshotRepository(db)
	rows := sqlmock.NewRows([]string{"id", "event_code", "main_event_id", "member_count", "created_at"}).
		AddRow("snap-1", "14600", 100, 42, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, event_code, main_event_id, member_count, created_at FROM signup_snapshots WHERE event_code = $1 ORDER BY created_at DESC LIMIT 50 OFFSET 0")).
		WithArgs("14600").
		WillReturnRows(rows)

	items, err := repo.List(context.Background(), models.SnapshotFilter{EventCode: "14600"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 42, items[0].MemberCount)
	require.NoError(t, mock.ExpectationsWereMet())
}
