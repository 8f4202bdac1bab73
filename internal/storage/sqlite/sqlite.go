// Package sqlite is the SQLite backend of core.Store, selected with
// STORAGE_DRIVER=sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	st "github.com/keshon/chatdispatch/internal/storagetypes"
)

// timeLayout is fixed width so stored timestamps compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	commandHistoryLimit = 50
	topLimit            = 5
)

const (
	scopeThreadCommand = "thread_command"
	scopeThreadUser    = "thread_user"
	scopeThreadMessage = "thread_message"
	scopeUserCommand   = "user_command"
)

type Store struct {
	db *sql.DB
}

// Open opens (creating when missing) the database at path and migrates it.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers; SQLite has a single write lock anyway.
	db.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *Store) GetUser(ctx context.Context, id string) (*st.User, error) {
	var (
		u                   st.User
		firstSeen, lastSeen string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, first_seen, last_seen, message_count, command_count FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &firstSeen, &lastSeen, &u.MessageCount, &u.CommandCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.FirstSeen = parseTime(firstSeen)
	u.LastSeen = parseTime(lastSeen)
	return &u, nil
}

func (s *Store) SaveUser(ctx context.Context, u *st.User) error {
	if u == nil || u.ID == "" {
		return fmt.Errorf("save user: missing id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, first_seen, last_seen, message_count, command_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			first_seen = excluded.first_seen,
			last_seen = excluded.last_seen,
			message_count = excluded.message_count,
			command_count = excluded.command_count`,
		u.ID, u.Name, formatTime(u.FirstSeen), formatTime(u.LastSeen), u.MessageCount, u.CommandCount)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id string) (*st.Group, error) {
	var (
		g         st.Group
		firstSeen string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, prefix, first_seen FROM threads WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name, &g.Prefix, &firstSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	g.FirstSeen = parseTime(firstSeen)
	return &g, nil
}

func (s *Store) SaveGroup(ctx context.Context, g *st.Group) error {
	if g == nil || g.ID == "" {
		return fmt.Errorf("save group: missing id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (id, name, prefix, first_seen) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, prefix = excluded.prefix, first_seen = excluded.first_seen`,
		g.ID, g.Name, g.Prefix, formatTime(g.FirstSeen))
	if err != nil {
		return fmt.Errorf("save group: %w", err)
	}
	return nil
}

func (s *Store) LogCommandUsage(ctx context.Context, u st.CommandUsage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("log command usage: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO command_usage (thread_id, user_id, username, command, args, at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ThreadID, u.UserID, u.Username, u.Command, u.Args, formatTime(u.Datetime))
	if err != nil {
		return fmt.Errorf("log command usage: insert: %w", err)
	}
	if err := bump(ctx, tx, scopeThreadCommand, u.ThreadID, u.Command); err != nil {
		return fmt.Errorf("log command usage: %w", err)
	}
	if err := bump(ctx, tx, scopeThreadUser, u.ThreadID, u.UserID); err != nil {
		return fmt.Errorf("log command usage: %w", err)
	}
	if u.UserID != "" {
		if err := bump(ctx, tx, scopeUserCommand, u.UserID, u.Command); err != nil {
			return fmt.Errorf("log command usage: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("log command usage: commit: %w", err)
	}
	return nil
}

func (s *Store) LogMessage(ctx context.Context, m st.MessageRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("log message: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (message_id, thread_id, user_id, kind, length, at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ThreadID, m.UserID, m.Kind, m.Length, formatTime(m.Datetime))
	if err != nil {
		return fmt.Errorf("log message: insert: %w", err)
	}
	if err := bump(ctx, tx, scopeThreadMessage, m.ThreadID, ""); err != nil {
		return fmt.Errorf("log message: %w", err)
	}
	if err := bump(ctx, tx, scopeThreadUser, m.ThreadID, m.UserID); err != nil {
		return fmt.Errorf("log message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("log message: commit: %w", err)
	}
	return nil
}

func bump(ctx context.Context, tx *sql.Tx, scope, owner, key string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO counters (scope, owner, key, count) VALUES (?, ?, ?, 1)
		ON CONFLICT(scope, owner, key) DO UPDATE SET count = count + 1`,
		scope, owner, key)
	if err != nil {
		return fmt.Errorf("bump %s counter: %w", scope, err)
	}
	return nil
}

// FetchCommandHistory returns the most recent command invocations of a
// thread, oldest first.
func (s *Store) FetchCommandHistory(ctx context.Context, threadID string) ([]st.CommandUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, user_id, username, command, args, at FROM (
			SELECT * FROM command_usage WHERE thread_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, threadID, commandHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch command history: %w", err)
	}
	defer rows.Close()

	var out []st.CommandUsage
	for rows.Next() {
		var (
			u  st.CommandUsage
			at string
		)
		if err := rows.Scan(&u.ThreadID, &u.UserID, &u.Username, &u.Command, &u.Args, &at); err != nil {
			return nil, fmt.Errorf("fetch command history: scan: %w", err)
		}
		u.Datetime = parseTime(at)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch command history: %w", err)
	}
	return out, nil
}

func (s *Store) UserStats(ctx context.Context, id string) (*st.UserStats, error) {
	stats := &st.UserStats{UserID: id}
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	if u == nil {
		return stats, nil
	}
	stats.Messages = u.MessageCount
	stats.Commands = u.CommandCount
	stats.FirstSeen = u.FirstSeen
	stats.LastSeen = u.LastSeen
	if stats.TopCommands, err = s.top(ctx, scopeUserCommand, id); err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	return stats, nil
}

func (s *Store) GroupStats(ctx context.Context, threadID string) (*st.GroupStats, error) {
	stats := &st.GroupStats{ThreadID: threadID}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(count) FROM counters WHERE scope = ? AND owner = ?), 0),
			COALESCE((SELECT SUM(count) FROM counters WHERE scope = ? AND owner = ?), 0)`,
		scopeThreadMessage, threadID, scopeThreadCommand, threadID,
	).Scan(&stats.Messages, &stats.Commands)
	if err != nil {
		return nil, fmt.Errorf("group stats: totals: %w", err)
	}
	if stats.TopUsers, err = s.top(ctx, scopeThreadUser, threadID); err != nil {
		return nil, fmt.Errorf("group stats: %w", err)
	}
	if stats.TopCommands, err = s.top(ctx, scopeThreadCommand, threadID); err != nil {
		return nil, fmt.Errorf("group stats: %w", err)
	}
	return stats, nil
}

func (s *Store) top(ctx context.Context, scope, owner string) ([]st.Count, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, count FROM counters
		WHERE scope = ? AND owner = ? AND key != '' AND count > 0
		ORDER BY count DESC, key ASC LIMIT ?`, scope, owner, topLimit)
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", scope, err)
	}
	defer rows.Close()

	out := []st.Count{}
	for rows.Next() {
		var c st.Count
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, fmt.Errorf("top %s: scan: %w", scope, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PruneBefore deletes history rows older than cutoff. Counters are kept.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	at := formatTime(cutoff)
	removed := 0
	for _, table := range []string{"command_usage", "messages"} {
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE at < ?`, at)
		if err != nil {
			return removed, fmt.Errorf("prune %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("prune %s: rows affected: %w", table, err)
		}
		removed += int(n)
	}
	return removed, nil
}
