package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildhall-io/guildhall/pkg/directory"
	"github.com/guildhall-io/guildhall/pkg/governance"
)

func TestCreateMember(t *testing.T) {
	srv, mock := newTestServer(t)
	now := time.Now()

	expectAuth(mock, 1, governance.RoleAdmin)
	expectGateRole(mock, 1, governance.RoleAdmin)
	mock.ExpectQuery(`INSERT INTO members \(full_name, designation, role\)`).
		WithArgs("Noor Haddad", "Archivist").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "external_identity", "full_name", "role", "designation", "created_at", "updated_at",
		}).AddRow(12, nil, "Noor Haddad", "member", "Archivist", now, now))

	rec := doRequest(srv, http.MethodPost, "/api/v1/members",
		`{"full_name": "Noor Haddad", "designation": "Archivist"}`)

	require.Equal(t, http.StatusCreated, rec.Code)

	var member directory.Member
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &member))
	assert.Equal(t, int64(12), member.ID)
	assert.Equal(t, governance.RoleMember, member.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMemberRequiresName(t *testing.T) {
	srv, mock := newTestServer(t)
	expectAuth(mock, 1, governance.RoleAdmin)
	expectGateRole(mock, 1, governance.RoleAdmin)

	rec := doRequest(srv, http.MethodPost, "/api/v1/members", `{"full_name": "  "}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMemberForbiddenForMembers(t *testing.T) {
	srv, mock := newTestServer(t)
	expectAuth(mock, 7, governance.RoleMember)
	expectGateRole(mock, 7, governance.RoleMember)

	rec := doRequest(srv, http.MethodPost, "/api/v1/members", `{"full_name": "X"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetMemberSelf(t *testing.T) {
	srv, mock := newTestServer(t)
	now := time.Now()

	expectAuth(mock, 7, governance.RoleMember)
	mock.ExpectQuery(`SELECT id, external_identity, full_name, role, designation, created_at, updated_at FROM members WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "external_identity", "full_name", "role", "designation", "created_at", "updated_at",
		}).AddRow(7, testSubject, "Asha Rao", "member", "Secretary", now, now))

	rec := doRequest(srv, http.MethodGet, "/api/v1/members/7", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMemberOtherNeedsDirectoryView(t *testing.T) {
	srv, mock := newTestServer(t)

	// A plain member reading someone else's record is refused.
	expectAuth(mock, 7, governance.RoleMember)
	expectGateRole(mock, 7, governance.RoleMember)

	rec := doRequest(srv, http.MethodGet, "/api/v1/members/8", "")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetMemberNotFound(t *testing.T) {
	srv, mock := newTestServer(t)

	expectAuth(mock, 1, governance.RoleSuperAdmin)
	expectGateRole(mock, 1, governance.RoleSuperAdmin)
	mock.ExpectQuery(`SELECT id, external_identity, full_name, role, designation, created_at, updated_at FROM members WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	rec := doRequest(srv, http.MethodGet, "/api/v1/members/404", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMembersByRole(t *testing.T) {
	srv, mock := newTestServer(t)
	now := time.Now()

	expectAuth(mock, 1, governance.RoleAdmin)
	expectGateRole(mock, 1, governance.RoleAdmin)
	mock.ExpectQuery(`FROM members WHERE role = \$1 ORDER BY id ASC`).
		WithArgs(governance.RoleAdmin).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "external_identity", "full_name", "role", "designation", "created_at", "updated_at",
		}).
			AddRow(1, nil, "Asha Rao", "admin", "Secretary", now, now).
			AddRow(5, nil, "Leo Brandt", "admin", "Treasurer", now, now))

	rec := doRequest(srv, http.MethodGet, "/api/v1/members?role=admin", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var members []*directory.Member
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &members))
	assert.Len(t, members, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMembersRejectsUnknownRole(t *testing.T) {
	srv, mock := newTestServer(t)
	expectAuth(mock, 1, governance.RoleAdmin)
	expectGateRole(mock, 1, governance.RoleAdmin)

	rec := doRequest(srv, http.MethodGet, "/api/v1/members?role=emperor", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMemberSuperAdminOnly(t *testing.T) {
	srv, mock := newTestServer(t)

	t.Run("super_admin deletes", func(t *testing.T) {
		expectAuth(mock, 1, governance.RoleSuperAdmin)
		expectGateRole(mock, 1, governance.RoleSuperAdmin)
		mock.ExpectExec(`DELETE FROM members WHERE id = \$1`).
			WithArgs(int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		rec := doRequest(srv, http.MethodDelete, "/api/v1/members/9", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("admin is refused", func(t *testing.T) {
		// directory.delete is absent from the policy, so only
		// super_admins pass the gate.
		expectAuth(mock, 2, governance.RoleAdmin)
		expectGateRole(mock, 2, governance.RoleAdmin)

		rec := doRequest(srv, http.MethodDelete, "/api/v1/members/9", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkIdentity(t *testing.T) {
	srv, mock := newTestServer(t)

	expectAuth(mock, 1, governance.RoleAdmin)
	expectGateRole(mock, 1, governance.RoleAdmin)
	mock.ExpectExec(`UPDATE members SET external_identity = \$1, updated_at = NOW\(\) WHERE id = \$2`).
		WithArgs("idp|noor", int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := doRequest(srv, http.MethodPost, "/api/v1/members/12/identity",
		`{"external_identity": "idp|noor"}`)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
