package directory

import "github.com/guildhall-io/guildhall/pkg/storage/postgres"

// Migrations returns the schema for the members table.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS members (
					id BIGSERIAL PRIMARY KEY,
					external_identity TEXT UNIQUE,
					full_name TEXT NOT NULL,
					role TEXT NOT NULL DEFAULT 'member'
						CHECK (role IN ('member', 'honourable', 'admin', 'super_admin')),
					designation TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_members_role ON members(role);
				CREATE INDEX IF NOT EXISTS idx_members_external_identity ON members(external_identity);
			`,
		},
	}
}
