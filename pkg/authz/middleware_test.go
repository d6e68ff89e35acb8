package authz

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildhall-io/guildhall/pkg/contextkeys"
	"github.com/guildhall-io/guildhall/pkg/directory"
	"github.com/guildhall-io/guildhall/pkg/governance"
)

func testPolicy(t *testing.T) *Policy {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"operations": {"requests.review": ["super_admin"]}
	}`), 0o644))
	policy, err := LoadPolicy(path)
	require.NoError(t, err)
	return policy
}

func requestAs(member *directory.Member) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if member == nil {
		return req
	}
	return req.WithContext(contextkeys.WithCaller(req.Context(), member))
}

func TestRequireOperation(t *testing.T) {
	policy := testPolicy(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		gate, _, db := newMockGate(t)
		defer db.Close()

		rec := httptest.NewRecorder()
		RequireOperation(gate, policy, "requests.review")(next).ServeHTTP(rec, requestAs(nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("allowed role", func(t *testing.T) {
		gate, mock, db := newMockGate(t)
		defer db.Close()
		expectActorRole(mock, 1, governance.RoleSuperAdmin)

		rec := httptest.NewRecorder()
		RequireOperation(gate, policy, "requests.review")(next).
			ServeHTTP(rec, requestAs(&directory.Member{ID: 1}))
		assert.Equal(t, http.StatusTeapot, rec.Code)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient role", func(t *testing.T) {
		gate, mock, db := newMockGate(t)
		defer db.Close()
		expectActorRole(mock, 7, governance.RoleAdmin)

		rec := httptest.NewRecorder()
		RequireOperation(gate, policy, "requests.review")(next).
			ServeHTTP(rec, requestAs(&directory.Member{ID: 7}))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unlisted operation denies non-super", func(t *testing.T) {
		gate, mock, db := newMockGate(t)
		defer db.Close()
		expectActorRole(mock, 7, governance.RoleAdmin)

		rec := httptest.NewRecorder()
		RequireOperation(gate, policy, "nothing.configured")(next).
			ServeHTTP(rec, requestAs(&directory.Member{ID: 7}))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestRequirePermission(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("active grant", func(t *testing.T) {
		gate, mock, db := newMockGate(t)
		defer db.Close()
		expectActorRole(mock, 7, governance.RoleAdmin)
		expectGrantActive(mock, 7, "finance", true)

		rec := httptest.NewRecorder()
		RequirePermission(gate, "finance")(next).
			ServeHTTP(rec, requestAs(&directory.Member{ID: 7}))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("revoked grant", func(t *testing.T) {
		gate, mock, db := newMockGate(t)
		defer db.Close()
		expectActorRole(mock, 7, governance.RoleAdmin)
		expectGrantActive(mock, 7, "finance", false)

		rec := httptest.NewRecorder()
		RequirePermission(gate, "finance")(next).
			ServeHTTP(rec, requestAs(&directory.Member{ID: 7}))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
