// pkuhole/database/migrations.go
package database

// migration represents a single database schema migration.
type migration struct {
	Version uint
	Query   string
}

// allMigrations holds all schema changes in order.
var allMigrations = []migration{
	{
		Version: 1,
		Query: `
-- Track when a followed topic's counters were last refreshed from the server
ALTER TABLE followed_topics ADD COLUMN refreshed_at DATETIME;
		`,
	},
}
