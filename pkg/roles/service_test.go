package roles

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

func expectCensusLock(mock sqlmock.Sqlmock) {
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(superAdminCensusLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectCallerRole(mock sqlmock.Sqlmock, callerID int64, role governance.Role) {
	mock.ExpectQuery(`SELECT role FROM members WHERE id = \$1`).
		WithArgs(callerID).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(string(role)))
}

func expectTargets(mock sqlmock.Sqlmock, targetIDs []int64, targets *sqlmock.Rows) {
	mock.ExpectQuery(`SELECT id, full_name, role FROM members WHERE id = ANY\(\$1\) ORDER BY id FOR UPDATE`).
		WithArgs(pq.Array(targetIDs)).
		WillReturnRows(targets)
}

func expectSuperAdminCount(mock sqlmock.Sqlmock, count int) {
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM members WHERE role = 'super_admin'`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func targetRows(pairs ...interface{}) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "full_name", "role"})
	for i := 0; i < len(pairs); i += 3 {
		rows.AddRow(pairs[i], pairs[i+1], pairs[i+2])
	}
	return rows
}

func ruleOf(t *testing.T, err error) governance.Rule {
	t.Helper()
	var violation *governance.RuleViolationError
	require.True(t, errors.As(err, &violation))
	assert.True(t, errors.Is(err, governance.ErrInvalidState))
	return violation.Rule
}

func TestSetRolesPromotion(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	mock.ExpectBegin()
	expectCensusLock(mock)
	expectCallerRole(mock, 1, governance.RoleSuperAdmin)
	expectTargets(mock, []int64{5}, targetRows(int64(5), "Asha Rao", "admin"))
	expectSuperAdminCount(mock, 1)
	mock.ExpectExec(`UPDATE members SET role = \$1, updated_at = NOW\(\) WHERE id = ANY\(\$2\)`).
		WithArgs(governance.RoleSuperAdmin, pq.Array([]int64{5})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := service.SetRoles(context.Background(), 1, []int64{5}, governance.RoleSuperAdmin)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRolesValidation(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	t.Run("unknown role", func(t *testing.T) {
		err := service.SetRoles(context.Background(), 1, []int64{5}, "emperor")
		assert.True(t, errors.Is(err, governance.ErrInvalidState))
	})

	t.Run("empty target set", func(t *testing.T) {
		err := service.SetRoles(context.Background(), 1, nil, governance.RoleAdmin)
		assert.True(t, errors.Is(err, governance.ErrInvalidState))
	})

	t.Run("caller must be super_admin", func(t *testing.T) {
		mock.ExpectBegin()
		expectCensusLock(mock)
		expectCallerRole(mock, 7, governance.RoleAdmin)
		mock.ExpectRollback()

		err := service.SetRoles(context.Background(), 7, []int64{5}, governance.RoleAdmin)
		assert.True(t, errors.Is(err, governance.ErrUnauthorized))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing target", func(t *testing.T) {
		mock.ExpectBegin()
		expectCensusLock(mock)
		expectCallerRole(mock, 1, governance.RoleSuperAdmin)
		expectTargets(mock, []int64{5, 404}, targetRows(int64(5), "Asha Rao", "admin"))
		mock.ExpectRollback()

		err := service.SetRoles(context.Background(), 1, []int64{5, 404}, governance.RoleAdmin)
		assert.True(t, errors.Is(err, governance.ErrNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSetRolesInvariants(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	t.Run("super_admin cap exceeded", func(t *testing.T) {
		mock.ExpectBegin()
		expectCensusLock(mock)
		expectCallerRole(mock, 1, governance.RoleSuperAdmin)
		expectTargets(mock, []int64{5}, targetRows(int64(5), "Asha Rao", "admin"))
		expectSuperAdminCount(mock, 2)
		mock.ExpectRollback()

		err := service.SetRoles(context.Background(), 1, []int64{5}, governance.RoleSuperAdmin)
		assert.Equal(t, governance.RuleSuperAdminCapExceeded, ruleOf(t, err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sole super_admin cannot demote themselves", func(t *testing.T) {
		mock.ExpectBegin()
		expectCensusLock(mock)
		expectCallerRole(mock, 1, governance.RoleSuperAdmin)
		expectTargets(mock, []int64{1}, targetRows(int64(1), "Mira Voss", "super_admin"))
		expectSuperAdminCount(mock, 1)
		mock.ExpectRollback()

		err := service.SetRoles(context.Background(), 1, []int64{1}, governance.RoleAdmin)
		assert.Equal(t, governance.RuleLastSuperAdminProtected, ruleOf(t, err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("demoting both super_admins is rejected", func(t *testing.T) {
		mock.ExpectBegin()
		expectCensusLock(mock)
		expectCallerRole(mock, 1, governance.RoleSuperAdmin)
		expectTargets(mock, []int64{1, 2},
			targetRows(int64(1), "Mira Voss", "super_admin", int64(2), "Leo Brandt", "super_admin"))
		expectSuperAdminCount(mock, 2)
		mock.ExpectRollback()

		err := service.SetRoles(context.Background(), 1, []int64{1, 2}, governance.RoleAdmin)
		assert.Equal(t, governance.RuleLastSuperAdminProtected, ruleOf(t, err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("honourable is terminal", func(t *testing.T) {
		mock.ExpectBegin()
		expectCensusLock(mock)
		expectCallerRole(mock, 1, governance.RoleSuperAdmin)
		expectTargets(mock, []int64{8}, targetRows(int64(8), "Old Guard", "honourable"))
		expectSuperAdminCount(mock, 1)
		mock.ExpectRollback()

		err := service.SetRoles(context.Background(), 1, []int64{8}, governance.RoleAdmin)
		assert.Equal(t, governance.RuleImmutableRole, ruleOf(t, err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("only admins become honourable", func(t *testing.T) {
		mock.ExpectBegin()
		expectCensusLock(mock)
		expectCallerRole(mock, 1, governance.RoleSuperAdmin)
		expectTargets(mock, []int64{3}, targetRows(int64(3), "New Joiner", "member"))
		expectSuperAdminCount(mock, 1)
		mock.ExpectRollback()

		err := service.SetRoles(context.Background(), 1, []int64{3}, governance.RoleHonourable)
		assert.Equal(t, governance.RuleInvalidPromotionPath, ruleOf(t, err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSetRolesHonourableFanOut(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	expectCensusLock(mock)
	expectCallerRole(mock, 1, governance.RoleSuperAdmin)
	expectTargets(mock, []int64{5}, targetRows(int64(5), "Asha Rao", "admin"))
	expectSuperAdminCount(mock, 2)
	mock.ExpectExec(`UPDATE members SET role = \$1, updated_at = NOW\(\) WHERE id = ANY\(\$2\)`).
		WithArgs(governance.RoleHonourable, pq.Array([]int64{5})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, external_identity, full_name, role, designation, created_at, updated_at FROM members WHERE role = \$1 ORDER BY id ASC`).
		WithArgs(governance.RoleSuperAdmin).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "external_identity", "full_name", "role", "designation", "created_at", "updated_at",
		}).
			AddRow(1, nil, "Mira Voss", "super_admin", "Chair", now, now).
			AddRow(2, nil, "Leo Brandt", "super_admin", "Treasurer", now, now))
	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(int64(1), "info", "Honourable promotion", "Made honourable: Asha Rao", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(int64(2), "info", "Honourable promotion", "Made honourable: Asha Rao", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := service.SetRoles(context.Background(), 1, []int64{5}, governance.RoleHonourable)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
