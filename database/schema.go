package database

const schema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME NOT NULL
);
-- Local attention list: topics the user follows, with the last known copy of each.
CREATE TABLE IF NOT EXISTS followed_topics (
	pid INTEGER PRIMARY KEY CHECK (pid > 0),
	text TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT 'text',
	timestamp INTEGER NOT NULL DEFAULT 0,
	reply INTEGER DEFAULT 0,
	likenum INTEGER DEFAULT 0,
	url TEXT DEFAULT '',
	followed_at DATETIME NOT NULL
);
-- At most one logged-in user; the token is stored sealed.
CREATE TABLE IF NOT EXISTS session (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	uid TEXT NOT NULL,
	sealed_token TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

-- --- INDEXES ---
CREATE INDEX IF NOT EXISTS idx_followed_topics_followed_at ON followed_topics(followed_at DESC);
`
