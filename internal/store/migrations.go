package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of SQLite schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_user_id    INTEGER NOT NULL,
	alert_id         INTEGER,
	entreprise_id    INTEGER,
	entreprise_siret TEXT NOT NULL DEFAULT '',
	title            TEXT NOT NULL DEFAULT '',
	message          TEXT NOT NULL DEFAULT '',
	alert            TEXT NOT NULL DEFAULT '',
	read             INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	deleted          INTEGER NOT NULL DEFAULT 0 CHECK(deleted IN (0, 1)),
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notifications_owner ON notifications(owner_user_id);
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_notifications_alert_id
	ON notifications(alert_id);

CREATE INDEX IF NOT EXISTS idx_notifications_owner_created
	ON notifications(owner_user_id, created_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}

// postgresSchema creates the notification table on PostgreSQL.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS notifications (
	id               BIGSERIAL PRIMARY KEY,
	owner_user_id    BIGINT NOT NULL,
	alert_id         BIGINT,
	entreprise_id    BIGINT,
	entreprise_siret VARCHAR(14) NOT NULL DEFAULT '',
	title            TEXT NOT NULL DEFAULT '',
	message          TEXT NOT NULL DEFAULT '',
	alert            JSONB,
	read             BOOLEAN NOT NULL DEFAULT FALSE,
	deleted          BOOLEAN NOT NULL DEFAULT FALSE,
	created_at       TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notifications_owner_created
	ON notifications(owner_user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_alert_id
	ON notifications(alert_id);
`
