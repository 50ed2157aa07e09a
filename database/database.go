// pkuhole/database/database.go
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkuhole/models"
	"pkuhole/utils"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNoSession is returned by LoadSession when nobody is logged in.
var ErrNoSession = errors.New("no saved session")

// DatabaseService is the local store of the client: the attention list and
// the saved session.
type DatabaseService struct {
	DB     *sql.DB
	logger *slog.Logger
}

// InitDB connects to the database and runs migrations.
func InitDB(dataSourceName string, logger *slog.Logger) (*DatabaseService, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}

	// Run the base schema to ensure all tables exist.
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute base schema: %w", err)
	}

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	logger.Debug("Local database ready", "dsn", dataSourceName)

	return &DatabaseService{
		DB:     db,
		logger: logger.With("component", "database"),
	}, nil
}

// Close releases the database handle.
func (ds *DatabaseService) Close() error {
	return ds.DB.Close()
}

// BackupDatabase performs an online backup of the live SQLite database using VACUUM INTO.
func (ds *DatabaseService) BackupDatabase(backupDir string) (string, error) {
	if backupDir == "" {
		return "", fmt.Errorf("backup directory is not configured")
	}
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return "", fmt.Errorf("could not create backup directory %s: %w", backupDir, err)
	}

	timestamp := utils.GetSQLTime().Format("2006-01-02_15-04-05")
	backupPath := filepath.Join(backupDir, fmt.Sprintf("pkuhole_backup_%s.db", timestamp))

	ds.logger.Info("Starting database backup", "destination", backupPath)

	if _, err := ds.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
		// If backup fails, attempt to remove the potentially incomplete file
		if removeErr := os.Remove(backupPath); removeErr != nil && !os.IsNotExist(removeErr) {
			ds.logger.Error("Failed to remove incomplete backup file", "path", backupPath, "error", removeErr)
		}
		return "", fmt.Errorf("VACUUM INTO command failed: %w", err)
	}

	return backupPath, nil
}

// runMigrations applies all un-applied migrations.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	var latestVersion uint
	err := db.QueryRow("SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1").Scan(&latestVersion)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("could not get db version: %w", err)
	}

	for _, m := range allMigrations {
		if m.Version <= latestVersion {
			continue
		}
		logger.Info("Applying migration", "version", m.Version)
		tx, err := db.Begin()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(m.Query); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				logger.Error("Failed to rollback migration", "version", m.Version, "error", rerr)
			}
			return fmt.Errorf("failed to apply migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", m.Version, utils.GetSQLTime()); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				logger.Error("Failed to rollback migration record", "version", m.Version, "error", rerr)
			}
			return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration v%d: %w", m.Version, err)
		}
	}
	return nil
}

// --- Attention list ---

const followedColumns = "pid, text, type, timestamp, reply, likenum, url, followed_at"

// upsertFollowed inserts a topic or refreshes the stored copy, keeping the
// original followed_at.
const upsertFollowed = `
INSERT INTO followed_topics (pid, text, type, timestamp, reply, likenum, url, followed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(pid) DO UPDATE SET
	text = excluded.text, type = excluded.type, timestamp = excluded.timestamp,
	reply = excluded.reply, likenum = excluded.likenum, url = excluded.url`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func addFollow(db execer, t models.Topic, now time.Time) error {
	if t.PID <= 0 {
		return fmt.Errorf("invalid pid %d", t.PID)
	}
	_, err := db.Exec(upsertFollowed, t.PID, t.Text, t.Type.String(), t.Timestamp, t.Reply, t.LikeNum, t.URL, now)
	return err
}

// IsFollowed reports whether pid is in the local attention list. Lookup
// errors are logged and read as "not followed".
func (ds *DatabaseService) IsFollowed(pid int64) bool {
	var n int
	if err := ds.DB.QueryRow("SELECT COUNT(*) FROM followed_topics WHERE pid = ?", pid).Scan(&n); err != nil {
		ds.logger.Error("Failed to look up followed topic", "pid", pid, "error", err)
		return false
	}
	return n > 0
}

// AddFollow stores topic in the attention list.
func (ds *DatabaseService) AddFollow(topic models.Topic) error {
	if err := addFollow(ds.DB, topic, utils.GetSQLTime()); err != nil {
		return fmt.Errorf("db error following topic %d: %w", topic.PID, err)
	}
	return nil
}

// RemoveFollow drops pid from the attention list. Removing a topic that is
// not followed is not an error.
func (ds *DatabaseService) RemoveFollow(pid int64) error {
	if _, err := ds.DB.Exec("DELETE FROM followed_topics WHERE pid = ?", pid); err != nil {
		return fmt.Errorf("db error unfollowing topic %d: %w", pid, err)
	}
	return nil
}

// RefreshTopic updates the stored copy of a followed topic in place. It
// returns false if the topic is not followed.
func (ds *DatabaseService) RefreshTopic(topic models.Topic) (bool, error) {
	res, err := ds.DB.Exec(
		"UPDATE followed_topics SET text = ?, reply = ?, likenum = ?, url = ?, refreshed_at = ? WHERE pid = ?",
		topic.Text, topic.Reply, topic.LikeNum, topic.URL, utils.GetSQLTime(), topic.PID,
	)
	if err != nil {
		return false, fmt.Errorf("db error refreshing topic %d: %w", topic.PID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListFollowed returns the attention list, most recently followed first.
func (ds *DatabaseService) ListFollowed() ([]models.FollowedTopic, error) {
	return ds.queryFollowed("SELECT " + followedColumns + " FROM followed_topics ORDER BY followed_at DESC, pid DESC")
}

// SearchFollowed returns followed topics whose text contains keyword.
func (ds *DatabaseService) SearchFollowed(keyword string) ([]models.FollowedTopic, error) {
	pattern := "%" + escapeLike(keyword) + "%"
	return ds.queryFollowed("SELECT "+followedColumns+" FROM followed_topics WHERE text LIKE ? ESCAPE '\\' ORDER BY followed_at DESC, pid DESC", pattern)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (ds *DatabaseService) queryFollowed(query string, args ...any) ([]models.FollowedTopic, error) {
	rows, err := ds.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error listing followed topics: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			ds.logger.Error("Failed to close rows", "error", err)
		}
	}()

	out := []models.FollowedTopic{}
	for rows.Next() {
		var f models.FollowedTopic
		var typ string
		if err := rows.Scan(&f.PID, &f.Text, &typ, &f.Timestamp, &f.Reply, &f.LikeNum, &f.URL, &f.FollowedAt); err != nil {
			return nil, fmt.Errorf("db error scanning followed topic: %w", err)
		}
		f.Type = models.ParseTopicType(typ)
		out = append(out, f)
	}
	return out, rows.Err()
}

// SyncFollowed makes the attention list match topics, the server's view.
// Topics already present keep their followed_at.
func (ds *DatabaseService) SyncFollowed(topics []models.Topic) error {
	tx, err := ds.DB.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			ds.logger.Error("Failed to rollback attention sync", "error", err)
		}
	}()

	keep := make([]any, 0, len(topics))
	now := utils.GetSQLTime()
	for _, t := range topics {
		if err := addFollow(tx, t, now); err != nil {
			return fmt.Errorf("db error syncing topic %d: %w", t.PID, err)
		}
		keep = append(keep, t.PID)
	}

	query := "DELETE FROM followed_topics"
	if len(keep) > 0 {
		query += " WHERE pid NOT IN (?" + strings.Repeat(",?", len(keep)-1) + ")"
	}
	res, err := tx.Exec(query, keep...)
	if err != nil {
		return fmt.Errorf("db error pruning attention list: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	removed, _ := res.RowsAffected()
	ds.logger.Info("Attention list synced", "count", len(topics), "removed", removed)
	return nil
}

// --- Session ---

// SaveSession stores user as the logged-in user, sealing the token with key.
func (ds *DatabaseService) SaveSession(user models.User, key string) error {
	sealed, err := utils.SealToken(key, user.Token)
	if err != nil {
		return fmt.Errorf("could not seal session token: %w", err)
	}
	_, err = ds.DB.Exec(`
		INSERT INTO session (id, uid, sealed_token, created_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET uid = excluded.uid, sealed_token = excluded.sealed_token, created_at = excluded.created_at
	`, user.UID, sealed, utils.GetSQLTime())
	if err != nil {
		return fmt.Errorf("db error saving session: %w", err)
	}
	return nil
}

// LoadSession returns the saved session with its token unsealed.
func (ds *DatabaseService) LoadSession(key string) (models.Session, error) {
	var s models.Session
	var sealed string
	err := ds.DB.QueryRow("SELECT uid, sealed_token, created_at FROM session WHERE id = 1").Scan(&s.UID, &sealed, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return models.Session{}, ErrNoSession
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("db error loading session: %w", err)
	}
	if s.Token, err = utils.OpenToken(key, sealed); err != nil {
		return models.Session{}, err
	}
	return s, nil
}

// ClearSession forgets the logged-in user.
func (ds *DatabaseService) ClearSession() error {
	_, err := ds.DB.Exec("DELETE FROM session")
	return err
}
