package directory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/guildhall-io/guildhall/pkg/governance"
	"github.com/guildhall-io/guildhall/pkg/storage/postgres"
)

const memberColumns = `id, external_identity, full_name, role, designation, created_at, updated_at`

// Store provides member directory persistence. It accepts a DBTX so the
// role transition service can read through its own transaction.
type Store struct {
	db postgres.DBTX
}

// NewStore creates a directory store.
func NewStore(db postgres.DBTX) *Store {
	return &Store{db: db}
}

// CreateMember registers a new member. Every member starts with the
// member role; only the role transition service changes it afterwards.
func (s *Store) CreateMember(ctx context.Context, fullName, designation string) (*Member, error) {
	query := `
		INSERT INTO members (full_name, designation, role)
		VALUES ($1, $2, 'member')
		RETURNING ` + memberColumns
	member, err := scanMember(s.db.QueryRowContext(ctx, query, fullName, designation))
	if err != nil {
		return nil, governance.Storagef("create member", err)
	}
	return member, nil
}

// GetMember retrieves a member by id.
func (s *Store) GetMember(ctx context.Context, memberID int64) (*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`
	member, err := scanMember(s.db.QueryRowContext(ctx, query, memberID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member %d: %w", memberID, governance.ErrNotFound)
	}
	if err != nil {
		return nil, governance.Storagef("get member", err)
	}
	return member, nil
}

// GetByExternalIdentity resolves an authentication identity to a member.
func (s *Store) GetByExternalIdentity(ctx context.Context, externalIdentity string) (*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE external_identity = $1`
	member, err := scanMember(s.db.QueryRowContext(ctx, query, externalIdentity))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("identity %q: %w", externalIdentity, governance.ErrNotFound)
	}
	if err != nil {
		return nil, governance.Storagef("get member by identity", err)
	}
	return member, nil
}

// GetRole returns the member's current role.
func (s *Store) GetRole(ctx context.Context, memberID int64) (governance.Role, error) {
	var role governance.Role
	err := s.db.QueryRowContext(ctx, `SELECT role FROM members WHERE id = $1`, memberID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("member %d: %w", memberID, governance.ErrNotFound)
	}
	if err != nil {
		return "", governance.Storagef("get role", err)
	}
	return role, nil
}

// CountSuperAdmins returns the current super_admin head count.
func (s *Store) CountSuperAdmins(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM members WHERE role = 'super_admin'`,
	).Scan(&count)
	if err != nil {
		return 0, governance.Storagef("count super admins", err)
	}
	return count, nil
}

// ListByRole returns members holding the given role, oldest first.
func (s *Store) ListByRole(ctx context.Context, role governance.Role) ([]*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE role = $1 ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, governance.Storagef("list members by role", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, governance.Storagef("scan member", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, governance.Storagef("list members by role", err)
	}
	return members, nil
}

// LinkIdentity records the authentication identity for a member on
// first sign-in.
func (s *Store) LinkIdentity(ctx context.Context, memberID int64, externalIdentity string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE members SET external_identity = $1, updated_at = NOW() WHERE id = $2`,
		externalIdentity, memberID,
	)
	if err != nil {
		return governance.Storagef("link identity", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return governance.Storagef("link identity", err)
	}
	if affected == 0 {
		return fmt.Errorf("member %d: %w", memberID, governance.ErrNotFound)
	}
	return nil
}

// DeleteMember removes a member. Grants, requests and notifications
// referencing the member are removed by foreign-key cascade.
func (s *Store) DeleteMember(ctx context.Context, memberID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE id = $1`, memberID)
	if err != nil {
		return governance.Storagef("delete member", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return governance.Storagef("delete member", err)
	}
	if affected == 0 {
		return fmt.Errorf("member %d: %w", memberID, governance.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(scanner rowScanner) (*Member, error) {
	member := &Member{}
	var externalIdentity sql.NullString
	err := scanner.Scan(
		&member.ID, &externalIdentity, &member.FullName,
		&member.Role, &member.Designation, &member.CreatedAt, &member.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if externalIdentity.Valid {
		member.ExternalIdentity = &externalIdentity.String
	}
	return member, nil
}
