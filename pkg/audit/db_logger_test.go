package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLogger(t *testing.T) (*DBLogger, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	// Skip NewDBLogger so the test does not script table creation.
	return &DBLogger{db: db}, mock, db
}

func TestDBLogger_Log(t *testing.T) {
	logger, mock, db := newMockLogger(t)
	defer db.Close()

	event := NewEvent(EventTypeBlockCreate, EventStatusSuccess).
		WithActor(7, "admin").
		WithResource(ResourceTypeUser, "42").
		WithMessage("blocked for spam").
		WithDetails(map[string]any{"project": "hello"})

	mock.ExpectQuery(`INSERT INTO audit_logs`).
		WithArgs(event.Timestamp, "block.create", event.UserID, "admin",
			"user", "42", "success", "blocked for spam", `{"project":"hello"}`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	require.NoError(t, logger.Log(context.Background(), event))
	assert.Equal(t, int64(11), event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_Log_NoDetails(t *testing.T) {
	logger, mock, db := newMockLogger(t)
	defer db.Close()

	event := NewEvent(EventTypeInviteExpire, EventStatusSuccess)

	mock.ExpectQuery(`INSERT INTO audit_logs`).
		WithArgs(event.Timestamp, "invite.expire", nil, "", "", "", "success", "", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))

	require.NoError(t, logger.Log(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_Search(t *testing.T) {
	columns := []string{
		"id", "timestamp", "event_type", "user_id", "username",
		"resource_type", "resource_id", "status", "message", "details",
	}
	now := time.Now()

	t.Run("filters combine in order", func(t *testing.T) {
		logger, mock, db := newMockLogger(t)
		defer db.Close()

		userID := int64(7)
		since := now.Add(-24 * time.Hour)
		mock.ExpectQuery(`FROM audit_logs WHERE 1=1 AND event_type IN \(\$1, \$2\) AND user_id = \$3 AND timestamp >= \$4 ORDER BY timestamp DESC LIMIT \$5`).
			WithArgs("block.create", "block.delete", userID, since, 10).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(int64(11), now, "block.create", userID, "admin", "user", "42", "success", "blocked", nil))

		events, err := logger.Search(context.Background(), SearchFilter{
			Types:  []EventType{EventTypeBlockCreate, EventTypeBlockDelete},
			UserID: &userID,
			Since:  &since,
			Limit:  10,
		})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeBlockCreate, events[0].Type)
		assert.Equal(t, "admin", events[0].Username)
		require.NotNil(t, events[0].UserID)
		assert.Equal(t, userID, *events[0].UserID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("system events scan with null actor", func(t *testing.T) {
		logger, mock, db := newMockLogger(t)
		defer db.Close()

		mock.ExpectQuery(`FROM audit_logs WHERE 1=1 ORDER BY timestamp DESC`).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(int64(12), now, "block.expire", nil, nil, nil, nil, "success", nil, `{"count":3}`))

		events, err := logger.Search(context.Background(), SearchFilter{})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Nil(t, events[0].UserID)
		assert.Empty(t, events[0].Username)
		assert.JSONEq(t, `{"count":3}`, string(events[0].Details))
	})
}

func TestEventBuilders(t *testing.T) {
	event := NewEvent(EventTypeAccessDenied, EventStatusDenied).
		WithResource(ResourceTypeProject, "hello")

	assert.Equal(t, EventTypeAccessDenied, event.Type)
	assert.Equal(t, EventStatusDenied, event.Status)
	assert.Equal(t, ResourceTypeProject, event.ResourceType)
	assert.False(t, event.Timestamp.IsZero())
	assert.Nil(t, event.UserID)
}
