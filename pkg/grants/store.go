package grants

import (
	"context"

	"github.com/lib/pq"

	"github.com/guildhall-io/guildhall/pkg/governance"
	"github.com/guildhall-io/guildhall/pkg/storage/postgres"
)

// pqForeignKeyViolation is the PostgreSQL error code raised when a
// grant references a member that does not exist.
const pqForeignKeyViolation = "23503"

// Store provides granted-permission persistence. It accepts a DBTX so
// the request workflow can grant inside its approval transaction.
type Store struct {
	db postgres.DBTX
}

// NewStore creates a grants store.
func NewStore(db postgres.DBTX) *Store {
	return &Store{db: db}
}

// Grant upserts the (actor, key) row as active. Re-granting an
// already-active permission leaves the row untouched, so retried and
// concurrent grants converge on a single active row. Granting for an
// unknown actor is a silent no-op; actor existence is the caller's
// responsibility to verify upstream if it matters.
func (s *Store) Grant(ctx context.Context, actorID int64, permissionKey string, grantedBy *int64) error {
	query := `
		INSERT INTO granted_permissions (actor_id, permission_key, granted_by, granted_at, is_active)
		VALUES ($1, $2, $3, NOW(), TRUE)
		ON CONFLICT (actor_id, permission_key) DO UPDATE
		SET is_active = TRUE,
		    granted_by = EXCLUDED.granted_by,
		    granted_at = EXCLUDED.granted_at
		WHERE granted_permissions.is_active = FALSE
	`
	_, err := s.db.ExecContext(ctx, query, actorID, permissionKey, grantedBy)
	if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == pqForeignKeyViolation {
		return nil
	}
	if err != nil {
		return governance.Storagef("grant permission", err)
	}
	return nil
}

// Revoke soft-deletes the grant. Revoking a missing or already-inactive
// grant succeeds silently.
func (s *Store) Revoke(ctx context.Context, actorID int64, permissionKey string) error {
	query := `
		UPDATE granted_permissions
		SET is_active = FALSE
		WHERE actor_id = $1 AND permission_key = $2 AND is_active
	`
	if _, err := s.db.ExecContext(ctx, query, actorID, permissionKey); err != nil {
		return governance.Storagef("revoke permission", err)
	}
	return nil
}

// IsActive reports whether the actor currently holds the capability.
func (s *Store) IsActive(ctx context.Context, actorID int64, permissionKey string) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM granted_permissions
			WHERE actor_id = $1 AND permission_key = $2 AND is_active
		)
	`, actorID, permissionKey).Scan(&active)
	if err != nil {
		return false, governance.Storagef("check permission", err)
	}
	return active, nil
}

// ListActiveByActor returns the set of capability keys the actor holds.
func (s *Store) ListActiveByActor(ctx context.Context, actorID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT permission_key FROM granted_permissions
		WHERE actor_id = $1 AND is_active
		ORDER BY permission_key
	`, actorID)
	if err != nil {
		return nil, governance.Storagef("list active permissions", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, governance.Storagef("scan permission key", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, governance.Storagef("list active permissions", err)
	}
	return keys, nil
}
