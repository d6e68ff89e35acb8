package notify

import "github.com/guildhall-io/guildhall/pkg/storage/postgres"

// Migrations returns the schema for the notifications table.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     3,
			Description: "Create notifications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notifications (
					id BIGSERIAL PRIMARY KEY,
					actor_id BIGINT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
					type TEXT NOT NULL CHECK (type IN (
						'permission_approved', 'permission_rejected',
						'permission_revoked', 'permission_granted', 'info'
					)),
					title TEXT NOT NULL,
					message TEXT NOT NULL,
					related_permission TEXT,
					is_read BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_notifications_actor_unread
					ON notifications(actor_id) WHERE NOT is_read;
				CREATE INDEX IF NOT EXISTS idx_notifications_actor_created
					ON notifications(actor_id, created_at DESC);
			`,
		},
	}
}
