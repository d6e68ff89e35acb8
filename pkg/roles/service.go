package roles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/guildhall-io/guildhall/pkg/directory"
	"github.com/guildhall-io/guildhall/pkg/governance"
	"github.com/guildhall-io/guildhall/pkg/notify"
)

// superAdminCensusLockKey is the pg_advisory_xact_lock key serializing
// every check-and-apply sequence that reads or changes the super_admin
// head count. Two transactions promoting different members cannot both
// pass the cap check against a stale count while one holds it.
const superAdminCensusLockKey = 7201

// Service applies batch role transitions. It owns the *sql.DB because
// every call runs as a single transaction covering the invariant
// checks, the role updates and the notification fan-out.
type Service struct {
	db *sql.DB
}

// NewService creates a role transition service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

type target struct {
	id       int64
	fullName string
	role     governance.Role
}

// SetRoles assigns newRole to every target as one all-or-nothing batch.
// Preconditions run in a fixed order before any write: caller must be a
// super_admin, the promotion must not push the super_admin count past
// two, demotions must not drop it below one, honourable targets never
// change again, and only admins become honourable.
func (s *Service) SetRoles(ctx context.Context, callerID int64, targetIDs []int64, newRole governance.Role) error {
	if !newRole.Valid() {
		return fmt.Errorf("unknown role %q: %w", newRole, governance.ErrInvalidState)
	}
	if len(targetIDs) == 0 {
		return fmt.Errorf("empty target set: %w", governance.ErrInvalidState)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return governance.Storagef("begin role transition", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, superAdminCensusLockKey); err != nil {
		return governance.Storagef("acquire census lock", err)
	}

	dir := directory.NewStore(tx)
	callerRole, err := dir.GetRole(ctx, callerID)
	if err != nil {
		if errors.Is(err, governance.ErrNotFound) {
			return fmt.Errorf("caller %d: %w", callerID, governance.ErrUnauthorized)
		}
		return err
	}
	if callerRole != governance.RoleSuperAdmin {
		return fmt.Errorf("role %s cannot change roles: %w", callerRole, governance.ErrUnauthorized)
	}

	targets, err := lockTargets(ctx, tx, targetIDs)
	if err != nil {
		return err
	}

	superCount, err := dir.CountSuperAdmins(ctx)
	if err != nil {
		return err
	}

	if newRole == governance.RoleSuperAdmin {
		toPromote := 0
		for _, t := range targets {
			if t.role != governance.RoleSuperAdmin {
				toPromote++
			}
		}
		if superCount+toPromote > governance.MaxSuperAdmins {
			return governance.NewRuleViolation(governance.RuleSuperAdminCapExceeded,
				"promoting %d member(s) would leave %d super_admins, cap is %d",
				toPromote, superCount+toPromote, governance.MaxSuperAdmins)
		}
	}

	if newRole != governance.RoleSuperAdmin {
		demoted := 0
		for _, t := range targets {
			if t.role == governance.RoleSuperAdmin {
				demoted++
			}
		}
		if demoted > 0 && superCount-demoted < governance.MinSuperAdmins {
			return governance.NewRuleViolation(governance.RuleLastSuperAdminProtected,
				"demoting %d super_admin(s) would leave %d, minimum is %d",
				demoted, superCount-demoted, governance.MinSuperAdmins)
		}
	}

	if newRole != governance.RoleHonourable {
		for _, t := range targets {
			if t.role == governance.RoleHonourable {
				return governance.NewRuleViolation(governance.RuleImmutableRole,
					"member %d is honourable and cannot change role", t.id)
			}
		}
	}

	if newRole == governance.RoleHonourable {
		for _, t := range targets {
			if t.role != governance.RoleAdmin {
				return governance.NewRuleViolation(governance.RuleInvalidPromotionPath,
					"member %d has role %s, only admins become honourable", t.id, t.role)
			}
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE members SET role = $1, updated_at = NOW() WHERE id = ANY($2)`,
		newRole, pq.Array(targetIDs),
	)
	if err != nil {
		return governance.Storagef("apply role transition", err)
	}

	if newRole == governance.RoleHonourable {
		if err := notifySuperAdmins(ctx, tx, targets); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return governance.Storagef("commit role transition", err)
	}
	return nil
}

// lockTargets loads and row-locks every target so a concurrent batch
// cannot change a target's role between the checks and the update.
func lockTargets(ctx context.Context, tx *sql.Tx, targetIDs []int64) ([]target, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, full_name, role FROM members WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		pq.Array(targetIDs),
	)
	if err != nil {
		return nil, governance.Storagef("lock targets", err)
	}
	defer rows.Close()

	found := make(map[int64]bool, len(targetIDs))
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.id, &t.fullName, &t.role); err != nil {
			return nil, governance.Storagef("scan target", err)
		}
		found[t.id] = true
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, governance.Storagef("lock targets", err)
	}

	for _, id := range targetIDs {
		if !found[id] {
			return nil, fmt.Errorf("member %d: %w", id, governance.ErrNotFound)
		}
	}
	return targets, nil
}

// notifySuperAdmins fans out one info notification per super_admin
// naming the members just made honourable. Runs in the same transaction
// as the role update.
func notifySuperAdmins(ctx context.Context, tx *sql.Tx, promoted []target) error {
	supers, err := directory.NewStore(tx).ListByRole(ctx, governance.RoleSuperAdmin)
	if err != nil {
		return err
	}

	names := make([]string, len(promoted))
	for i, t := range promoted {
		names[i] = t.fullName
	}
	message := fmt.Sprintf("Made honourable: %s", strings.Join(names, ", "))

	store := notify.NewStore(tx)
	for _, admin := range supers {
		if err := store.Append(ctx, admin.ID, notify.TypeInfo, "Honourable promotion", message, nil); err != nil {
			return err
		}
	}
	return nil
}
