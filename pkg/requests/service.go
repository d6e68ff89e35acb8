package requests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/guildhall-io/guildhall/pkg/directory"
	"github.com/guildhall-io/guildhall/pkg/governance"
	"github.com/guildhall-io/guildhall/pkg/grants"
	"github.com/guildhall-io/guildhall/pkg/notify"
	"github.com/guildhall-io/guildhall/pkg/storage/postgres"
)

// pqUniqueViolation is the PostgreSQL error code raised when a second
// pending request lands on the same (actor, permission) pair.
const pqUniqueViolation = "23505"

const requestColumns = `id, actor_id, permission_key, reason, status, reviewer_id, review_note, created_at, updated_at`

// Service orchestrates the permission request workflow. It owns the
// *sql.DB because approval and rejection run as transactions spanning
// the request row, the grant and the notification.
type Service struct {
	db *sql.DB
}

// NewService creates a request workflow service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Submit files a request for an extra capability. Only admins submit
// requests; members have nothing to escalate to and super_admins grant
// directly. A second pending request for the same pair is rejected.
func (s *Service) Submit(ctx context.Context, actorID int64, permissionKey, reason string) (*PermissionRequest, error) {
	role, err := directory.NewStore(s.db).GetRole(ctx, actorID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("member %d cannot submit requests: %w", actorID, governance.ErrUnauthorized)
		}
		return nil, err
	}
	if role != governance.RoleAdmin {
		return nil, fmt.Errorf("role %s cannot submit requests: %w", role, governance.ErrUnauthorized)
	}

	query := `
		INSERT INTO permission_requests (actor_id, permission_key, reason)
		VALUES ($1, $2, $3)
		RETURNING ` + requestColumns
	request, err := scanRequest(s.db.QueryRowContext(ctx, query, actorID, permissionKey, reason))
	if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == pqUniqueViolation {
		return nil, fmt.Errorf("pending request for %q already exists: %w", permissionKey, governance.ErrConflict)
	}
	if err != nil {
		return nil, governance.Storagef("submit request", err)
	}
	return request, nil
}

// Approve marks the request approved, grants the capability and
// notifies the requester, all in one transaction. The request must be
// pending and the reviewer must be a super_admin.
func (s *Service) Approve(ctx context.Context, requestID, reviewerID int64, note *string) (*PermissionRequest, error) {
	return s.review(ctx, requestID, reviewerID, note, true)
}

// Reject marks the request rejected and notifies the requester. The
// same preconditions as Approve apply; nothing is granted.
func (s *Service) Reject(ctx context.Context, requestID, reviewerID int64, note *string) (*PermissionRequest, error) {
	return s.review(ctx, requestID, reviewerID, note, false)
}

func (s *Service) review(ctx context.Context, requestID, reviewerID int64, note *string, approve bool) (*PermissionRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, governance.Storagef("begin review", err)
	}
	defer tx.Rollback()

	reviewerRole, err := directory.NewStore(tx).GetRole(ctx, reviewerID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("reviewer %d: %w", reviewerID, governance.ErrUnauthorized)
		}
		return nil, err
	}
	if reviewerRole != governance.RoleSuperAdmin {
		return nil, fmt.Errorf("role %s cannot review requests: %w", reviewerRole, governance.ErrUnauthorized)
	}

	request, err := lockRequest(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != StatusPending {
		return nil, fmt.Errorf("request %d is already %s: %w", requestID, request.Status, governance.ErrInvalidState)
	}

	status := StatusRejected
	if approve {
		status = StatusApproved
	}
	err = tx.QueryRowContext(ctx, `
		UPDATE permission_requests
		SET status = $1, reviewer_id = $2, review_note = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`, status, reviewerID, note, requestID).Scan(&request.UpdatedAt)
	if err != nil {
		return nil, governance.Storagef("update request", err)
	}
	request.Status = status
	request.ReviewerID = &reviewerID
	request.ReviewNote = note

	if approve {
		if err := grants.NewStore(tx).Grant(ctx, request.ActorID, request.PermissionKey, &reviewerID); err != nil {
			return nil, err
		}
	}

	notification := notify.TypePermissionRejected
	title := "Permission request rejected"
	message := fmt.Sprintf("Your request for %q was rejected", request.PermissionKey)
	if approve {
		notification = notify.TypePermissionApproved
		title = "Permission request approved"
		message = fmt.Sprintf("Your request for %q was approved", request.PermissionKey)
	}
	if err := notify.NewStore(tx).Append(ctx, request.ActorID, notification, title, message, &request.PermissionKey); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, governance.Storagef("commit review", err)
	}
	return request, nil
}

// ListPending returns the review queue, newest first. Only super_admins
// see it.
func (s *Service) ListPending(ctx context.Context, callerID int64) ([]*PermissionRequest, error) {
	role, err := directory.NewStore(s.db).GetRole(ctx, callerID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("member %d: %w", callerID, governance.ErrUnauthorized)
		}
		return nil, err
	}
	if role != governance.RoleSuperAdmin {
		return nil, fmt.Errorf("role %s cannot list pending requests: %w", role, governance.ErrUnauthorized)
	}

	query := `
		SELECT ` + requestColumns + `
		FROM permission_requests
		WHERE status = 'pending'
		ORDER BY created_at DESC, id DESC
	`
	return s.queryRequests(ctx, query)
}

// ListMine returns every request the actor has filed, newest first.
func (s *Service) ListMine(ctx context.Context, actorID int64) ([]*PermissionRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM permission_requests
		WHERE actor_id = $1
		ORDER BY created_at DESC, id DESC
	`
	return s.queryRequests(ctx, query, actorID)
}

func (s *Service) queryRequests(ctx context.Context, query string, args ...interface{}) ([]*PermissionRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, governance.Storagef("list requests", err)
	}
	defer rows.Close()

	var requests []*PermissionRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, governance.Storagef("scan request", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, governance.Storagef("list requests", err)
	}
	return requests, nil
}

func lockRequest(ctx context.Context, tx postgres.DBTX, requestID int64) (*PermissionRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM permission_requests WHERE id = $1 FOR UPDATE`
	request, err := scanRequest(tx.QueryRowContext(ctx, query, requestID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("request %d: %w", requestID, governance.ErrNotFound)
	}
	if err != nil {
		return nil, governance.Storagef("lock request", err)
	}
	return request, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(scanner rowScanner) (*PermissionRequest, error) {
	request := &PermissionRequest{}
	var reviewerID sql.NullInt64
	var reviewNote sql.NullString
	err := scanner.Scan(
		&request.ID, &request.ActorID, &request.PermissionKey, &request.Reason,
		&request.Status, &reviewerID, &reviewNote, &request.CreatedAt, &request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reviewerID.Valid {
		request.ReviewerID = &reviewerID.Int64
	}
	if reviewNote.Valid {
		request.ReviewNote = &reviewNote.String
	}
	return request, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, governance.ErrNotFound)
}
