package grants

import "github.com/guildhall-io/guildhall/pkg/storage/postgres"

// Migrations returns the schema for the granted_permissions table.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     2,
			Description: "Create granted_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS granted_permissions (
					id BIGSERIAL PRIMARY KEY,
					actor_id BIGINT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
					permission_key TEXT NOT NULL,
					granted_by BIGINT REFERENCES members(id) ON DELETE SET NULL,
					granted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					UNIQUE (actor_id, permission_key)
				);

				CREATE INDEX IF NOT EXISTS idx_granted_permissions_actor
					ON granted_permissions(actor_id) WHERE is_active;
			`,
		},
	}
}
