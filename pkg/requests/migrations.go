package requests

import "github.com/guildhall-io/guildhall/pkg/storage/postgres"

// Migrations returns the schema for the permission_requests table. The
// partial unique index is what makes the one-pending-request-per-pair
// rule hold under concurrent submissions.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     4,
			Description: "Create permission_requests table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_requests (
					id BIGSERIAL PRIMARY KEY,
					actor_id BIGINT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
					permission_key TEXT NOT NULL,
					reason TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending'
						CHECK (status IN ('pending', 'approved', 'rejected')),
					reviewer_id BIGINT REFERENCES members(id) ON DELETE SET NULL,
					review_note TEXT,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_permission_requests_one_pending
					ON permission_requests(actor_id, permission_key) WHERE status = 'pending';
				CREATE INDEX IF NOT EXISTS idx_permission_requests_status
					ON permission_requests(status, created_at DESC);
				CREATE INDEX IF NOT EXISTS idx_permission_requests_actor
					ON permission_requests(actor_id, created_at DESC);
			`,
		},
	}
}
