package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildhall-io/guildhall/pkg/governance"
)

func expectCensusLockHTTP(mock sqlmock.Sqlmock) {
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestSetRolesHTTP(t *testing.T) {
	srv, mock := newTestServer(t)

	expectAuth(mock, 1, governance.RoleSuperAdmin)
	mock.ExpectBegin()
	expectCensusLockHTTP(mock)
	expectGateRole(mock, 1, governance.RoleSuperAdmin)
	mock.ExpectQuery(`SELECT id, full_name, role FROM members WHERE id = ANY\(\$1\) ORDER BY id FOR UPDATE`).
		WithArgs(pq.Array([]int64{5})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "role"}).
			AddRow(5, "Asha Rao", "member"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM members WHERE role = 'super_admin'`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(`UPDATE members SET role = \$1, updated_at = NOW\(\) WHERE id = ANY\(\$2\)`).
		WithArgs(governance.RoleAdmin, pq.Array([]int64{5})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := doRequest(srv, http.MethodPost, "/api/v1/roles",
		`{"target_ids": [5], "new_role": "admin"}`)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRolesRuleViolationHTTP(t *testing.T) {
	srv, mock := newTestServer(t)

	expectAuth(mock, 1, governance.RoleSuperAdmin)
	mock.ExpectBegin()
	expectCensusLockHTTP(mock)
	expectGateRole(mock, 1, governance.RoleSuperAdmin)
	mock.ExpectQuery(`SELECT id, full_name, role FROM members WHERE id = ANY\(\$1\) ORDER BY id FOR UPDATE`).
		WithArgs(pq.Array([]int64{5})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "role"}).
			AddRow(5, "Asha Rao", "admin"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM members WHERE role = 'super_admin'`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	rec := doRequest(srv, http.MethodPost, "/api/v1/roles",
		`{"target_ids": [5], "new_role": "super_admin"}`)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "super_admin_cap_exceeded", body["rule"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRolesNonSuperRefused(t *testing.T) {
	srv, mock := newTestServer(t)

	expectAuth(mock, 7, governance.RoleAdmin)
	mock.ExpectBegin()
	expectCensusLockHTTP(mock)
	expectGateRole(mock, 7, governance.RoleAdmin)
	mock.ExpectRollback()

	rec := doRequest(srv, http.MethodPost, "/api/v1/roles",
		`{"target_ids": [5], "new_role": "admin"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRolesUnknownRole(t *testing.T) {
	srv, mock := newTestServer(t)
	expectAuth(mock, 1, governance.RoleSuperAdmin)

	rec := doRequest(srv, http.MethodPost, "/api/v1/roles",
		`{"target_ids": [5], "new_role": "emperor"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
