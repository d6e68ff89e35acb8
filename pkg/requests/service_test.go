package requests

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildhall-io/guildhall/pkg/governance"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewService(db), mock, db
}

func requestRow(id, actorID int64, key string, status Status) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "actor_id", "permission_key", "reason", "status",
		"reviewer_id", "review_note", "created_at", "updated_at",
	}).AddRow(id, actorID, key, "need it", status, nil, nil, now, now)
}

func expectRole(mock sqlmock.Sqlmock, memberID int64, role governance.Role) {
	mock.ExpectQuery(`SELECT role FROM members WHERE id = \$1`).
		WithArgs(memberID).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(string(role)))
}

func TestSubmit(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	t.Run("admin submits", func(t *testing.T) {
		expectRole(mock, 7, governance.RoleAdmin)
		mock.ExpectQuery(`INSERT INTO permission_requests \(actor_id, permission_key, reason\)`).
			WithArgs(int64(7), "finance", "need it").
			WillReturnRows(requestRow(10, 7, "finance", StatusPending))

		request, err := service.Submit(context.Background(), 7, "finance", "need it")
		require.NoError(t, err)
		assert.Equal(t, int64(10), request.ID)
		assert.Equal(t, StatusPending, request.Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("member cannot submit", func(t *testing.T) {
		expectRole(mock, 3, governance.RoleMember)

		_, err := service.Submit(context.Background(), 3, "finance", "need it")
		assert.True(t, errors.Is(err, governance.ErrUnauthorized))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("super_admin cannot submit", func(t *testing.T) {
		expectRole(mock, 2, governance.RoleSuperAdmin)

		_, err := service.Submit(context.Background(), 2, "finance", "need it")
		assert.True(t, errors.Is(err, governance.ErrUnauthorized))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown caller", func(t *testing.T) {
		mock.ExpectQuery(`SELECT role FROM members WHERE id = \$1`).
			WithArgs(int64(99)).
			WillReturnError(sql.ErrNoRows)

		_, err := service.Submit(context.Background(), 99, "finance", "need it")
		assert.True(t, errors.Is(err, governance.ErrUnauthorized))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate pending request", func(t *testing.T) {
		expectRole(mock, 7, governance.RoleAdmin)
		mock.ExpectQuery(`INSERT INTO permission_requests`).
			WithArgs(int64(7), "finance", "need it").
			WillReturnError(&pq.Error{Code: "23505"})

		_, err := service.Submit(context.Background(), 7, "finance", "need it")
		assert.True(t, errors.Is(err, governance.ErrConflict))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestApprove(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	t.Run("grants and notifies in one transaction", func(t *testing.T) {
		note := "looks fine"
		mock.ExpectBegin()
		expectRole(mock, 2, governance.RoleSuperAdmin)
		mock.ExpectQuery(`SELECT id, actor_id, permission_key, reason, status, reviewer_id, review_note, created_at, updated_at FROM permission_requests WHERE id = \$1 FOR UPDATE`).
			WithArgs(int64(10)).
			WillReturnRows(requestRow(10, 7, "finance", StatusPending))
		mock.ExpectQuery(`UPDATE permission_requests\s+SET status = \$1, reviewer_id = \$2, review_note = \$3, updated_at = NOW\(\)\s+WHERE id = \$4\s+RETURNING updated_at`).
			WithArgs(StatusApproved, int64(2), &note, int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
		mock.ExpectExec(`INSERT INTO granted_permissions`).
			WithArgs(int64(7), "finance", int64(2)).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`INSERT INTO notifications`).
			WithArgs(int64(7), "permission_approved", "Permission request approved",
				`Your request for "finance" was approved`, "finance").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		request, err := service.Approve(context.Background(), 10, 2, &note)
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, request.Status)
		require.NotNil(t, request.ReviewerID)
		assert.Equal(t, int64(2), *request.ReviewerID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reviewer must be super_admin", func(t *testing.T) {
		mock.ExpectBegin()
		expectRole(mock, 7, governance.RoleAdmin)
		mock.ExpectRollback()

		_, err := service.Approve(context.Background(), 10, 7, nil)
		assert.True(t, errors.Is(err, governance.ErrUnauthorized))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("request not found", func(t *testing.T) {
		mock.ExpectBegin()
		expectRole(mock, 2, governance.RoleSuperAdmin)
		mock.ExpectQuery(`FROM permission_requests WHERE id = \$1 FOR UPDATE`).
			WithArgs(int64(404)).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := service.Approve(context.Background(), 404, 2, nil)
		assert.True(t, errors.Is(err, governance.ErrNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already reviewed", func(t *testing.T) {
		mock.ExpectBegin()
		expectRole(mock, 2, governance.RoleSuperAdmin)
		mock.ExpectQuery(`FROM permission_requests WHERE id = \$1 FOR UPDATE`).
			WithArgs(int64(10)).
			WillReturnRows(requestRow(10, 7, "finance", StatusRejected))
		mock.ExpectRollback()

		_, err := service.Approve(context.Background(), 10, 2, nil)
		assert.True(t, errors.Is(err, governance.ErrInvalidState))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("grant failure rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		expectRole(mock, 2, governance.RoleSuperAdmin)
		mock.ExpectQuery(`FROM permission_requests WHERE id = \$1 FOR UPDATE`).
			WithArgs(int64(10)).
			WillReturnRows(requestRow(10, 7, "finance", StatusPending))
		mock.ExpectQuery(`UPDATE permission_requests`).
			WithArgs(StatusApproved, int64(2), nil, int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
		mock.ExpectExec(`INSERT INTO granted_permissions`).
			WithArgs(int64(7), "finance", int64(2)).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		_, err := service.Approve(context.Background(), 10, 2, nil)
		require.Error(t, err)
		assert.True(t, governance.IsRetryable(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReject(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	note := "not this quarter"
	mock.ExpectBegin()
	expectRole(mock, 2, governance.RoleSuperAdmin)
	mock.ExpectQuery(`FROM permission_requests WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(10)).
		WillReturnRows(requestRow(10, 7, "finance", StatusPending))
	mock.ExpectQuery(`UPDATE permission_requests`).
		WithArgs(StatusRejected, int64(2), &note, int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(int64(7), "permission_rejected", "Permission request rejected",
			`Your request for "finance" was rejected`, "finance").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	request, err := service.Reject(context.Background(), 10, 2, &note)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, request.Status)
	require.NotNil(t, request.ReviewNote)
	assert.Equal(t, note, *request.ReviewNote)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPending(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	t.Run("super_admin sees the queue", func(t *testing.T) {
		expectRole(mock, 2, governance.RoleSuperAdmin)
		mock.ExpectQuery(`FROM permission_requests\s+WHERE status = 'pending'\s+ORDER BY created_at DESC, id DESC`).
			WillReturnRows(requestRow(10, 7, "finance", StatusPending))

		pending, err := service.ListPending(context.Background(), 2)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "finance", pending[0].PermissionKey)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("admin cannot see the queue", func(t *testing.T) {
		expectRole(mock, 7, governance.RoleAdmin)

		_, err := service.ListPending(context.Background(), 7)
		assert.True(t, errors.Is(err, governance.ErrUnauthorized))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListMine(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	mock.ExpectQuery(`FROM permission_requests\s+WHERE actor_id = \$1\s+ORDER BY created_at DESC, id DESC`).
		WithArgs(int64(7)).
		WillReturnRows(requestRow(10, 7, "finance", StatusApproved))

	mine, err := service.ListMine(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, StatusApproved, mine[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
